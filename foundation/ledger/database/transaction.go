package database

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/claimchain/claimchain/foundation/ledger/signature"
)

// TxKind identifies what a transaction does to the ledger.
type TxKind string

// Set of transaction kinds the reducer understands.
const (
	TxKindCoinbase TxKind = "coinbase"     // Block reward plus the escrow fee share, created by the miner.
	TxKindRequest  TxKind = "request"      // Reserve an item, or pay a penalty if it is already held.
	TxKindRelease  TxKind = "release"      // Give an item back and collect its value plus escrow share.
	TxKindBuyout   TxKind = "buyout_offer" // Pay the holder the item's going value for the reservation.
	TxKindTransfer TxKind = "transfer"     // Move credits between two accounts.
)

// =============================================================================

// UserTx is the transactional information submitted by a wallet. The account
// submitting it is never a field, it is recovered from the signature.
type UserTx struct {
	ChainID uint16    `json:"chain_id"`          // The chain id declared in the genesis file.
	Nonce   uint64    `json:"nonce"`             // Unique id for the transaction supplied by the user.
	Kind    TxKind    `json:"kind"`              // What this transaction does to the ledger.
	ItemID  string    `json:"item_id,omitempty"` // Item being requested, released or bought out.
	ToID    AccountID `json:"to,omitempty"`      // Account receiving the benefit of the transaction.
	Value   float64   `json:"value,omitempty"`   // Credits moved by transfer and buyout transactions.
}

// NewUserTx constructs a new user transaction and validates its shape for
// the specified kind.
func NewUserTx(chainID uint16, nonce uint64, kind TxKind, itemID string, toID AccountID, value float64) (UserTx, error) {
	tx := UserTx{
		ChainID: chainID,
		Nonce:   nonce,
		Kind:    kind,
		ItemID:  itemID,
		ToID:    toID,
		Value:   value,
	}

	if err := tx.validateShape(); err != nil {
		return UserTx{}, err
	}

	return tx, nil
}

// Sign uses the specified private key to sign the transaction.
func (tx UserTx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	if err := tx.validateShape(); err != nil {
		return SignedTx{}, err
	}

	// Sign the transaction with the private key to produce a signature.
	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	// Construct the signed transaction by adding the signature
	// in the [R|S|V] format.
	signedTx := SignedTx{
		UserTx: tx,
		V:      v,
		R:      r,
		S:      s,
	}

	return signedTx, nil
}

// validateShape checks the fields required by each transaction kind.
func (tx UserTx) validateShape() error {
	switch tx.Kind {
	case TxKindRequest, TxKindRelease:
		if tx.ItemID == "" {
			return fmt.Errorf("%s transaction needs an item id", tx.Kind)
		}

	case TxKindBuyout:
		if tx.ItemID == "" {
			return errors.New("buyout transaction needs an item id")
		}
		if !tx.ToID.IsAccountID() {
			return errors.New("buyout transaction needs the holder account")
		}
		if tx.Value <= 0 {
			return errors.New("buyout transaction needs a positive offer")
		}

	case TxKindTransfer:
		if !tx.ToID.IsAccountID() {
			return errors.New("transfer to account is not properly formatted")
		}
		if tx.Value <= 0 {
			return errors.New("transfer transaction needs a positive value")
		}

	case TxKindCoinbase:
		return errors.New("coinbase transactions are created by the miner")

	default:
		return fmt.Errorf("unknown transaction kind %q", tx.Kind)
	}

	return nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the ledger.
type SignedTx struct {
	UserTx
	V *big.Int `json:"v"` // Recovery identifier, either 31 or 32 with the claim id.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the transaction has a proper shape for its kind and a
// signature that conforms to our standards and is associated with the data
// claimed to be signed.
func (tx SignedTx) Validate() error {
	if err := tx.validateShape(); err != nil {
		return err
	}

	if err := signature.VerifySignature(tx.UserTx, tx.V, tx.R, tx.S); err != nil {
		return err
	}

	return nil
}

// FromAccount extracts the account id that signed the transaction. Coinbase
// transactions are authored by the node, so the beneficiary is the source.
func (tx SignedTx) FromAccount() (AccountID, error) {
	if tx.Kind == TxKindCoinbase {
		return tx.ToID, nil
	}

	address, err := signature.FromAddress(tx.UserTx, tx.V, tx.R, tx.S)
	return AccountID(address), err
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	from, err := tx.FromAccount()
	if err != nil {
		from = "unknown"
	}

	return fmt.Sprintf("%s:%d", from, tx.Nonce)
}

// =============================================================================

// BlockTx represents the transaction as it's recorded inside a block. This
// includes the time the node first saw the transaction.
type BlockTx struct {
	SignedTx
	TimeStamp uint64 `json:"timestamp"` // The time the transaction was received.
}

// NewBlockTx constructs a new block transaction.
func NewBlockTx(signedTx SignedTx) BlockTx {
	return BlockTx{
		SignedTx:  signedTx,
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}
}

// NewCoinbaseTx constructs the transaction that pays the block beneficiary
// the mining reward plus the escrow fee share. The block number is used as
// the nonce so every coinbase hashes uniquely.
func NewCoinbaseTx(chainID uint16, beneficiaryID AccountID, value float64, blockNumber uint64) BlockTx {
	return BlockTx{
		SignedTx: SignedTx{
			UserTx: UserTx{
				ChainID: chainID,
				Nonce:   blockNumber,
				Kind:    TxKindCoinbase,
				ToID:    beneficiaryID,
				Value:   value,
			},
			V: big.NewInt(0),
			R: big.NewInt(0),
			S: big.NewInt(0),
		},
		TimeStamp: uint64(time.Now().UTC().Unix()),
	}
}

// Hash implements the merkle Hashable interface for providing a hash
// of a block transaction.
func (tx BlockTx) Hash() ([]byte, error) {
	str := signature.Hash(tx)
	return hex.DecodeString(str[2:])
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two block transactions. If the nonce and signatures are the
// same, the two transactions are the same.
func (tx BlockTx) Equals(otherTx BlockTx) bool {
	txSig := signature.ToSignatureBytes(tx.V, tx.R, tx.S)
	otherTxSig := signature.ToSignatureBytes(otherTx.V, otherTx.R, otherTx.S)

	return tx.Nonce == otherTx.Nonce && bytes.Equal(txSig, otherTxSig)
}
