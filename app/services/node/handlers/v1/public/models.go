package public

import "github.com/claimchain/claimchain/foundation/ledger/database"

type tx struct {
	FromAccount database.AccountID `json:"from"`
	FromName    string             `json:"from_name"`
	Kind        database.TxKind    `json:"kind"`
	ItemID      string             `json:"item_id,omitempty"`
	To          database.AccountID `json:"to,omitempty"`
	ToName      string             `json:"to_name,omitempty"`
	Nonce       uint64             `json:"nonce"`
	Value       float64            `json:"value"`
	TimeStamp   uint64             `json:"timestamp"`
	Sig         string             `json:"sig"`
}

type block struct {
	Hash          string             `json:"hash"`
	PrevBlockHash string             `json:"prev_block_hash"`
	Beneficiary   database.AccountID `json:"beneficiary"`
	Difficulty    uint16             `json:"difficulty"`
	Number        uint64             `json:"number"`
	TransRoot     string             `json:"trans_root"`
	TimeStamp     uint64             `json:"timestamp"`
	Nonce         uint64             `json:"nonce"`
	Transactions  []tx               `json:"txs"`
}

type actInfo struct {
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Accounts    []info `json:"accounts"`
}

type info struct {
	Account database.AccountID `json:"account"`
	Name    string             `json:"name"`
	Balance float64            `json:"balance"`
	Nonce   uint64             `json:"nonce"`
}

type itemInfo struct {
	ItemID     string             `json:"item_id"`
	Reserved   bool               `json:"reserved"`
	HolderID   database.AccountID `json:"holder_id,omitempty"`
	HolderName string             `json:"holder_name,omitempty"`
	Value      float64            `json:"value"`
	Demand     int                `json:"demand"`
	Escrow     float64            `json:"escrow"`
}
