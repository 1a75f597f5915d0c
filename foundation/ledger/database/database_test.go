package database_test

import (
	"context"
	"math"
	"testing"

	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/claimchain/claimchain/foundation/ledger/database/storage/memory"
	"github.com/claimchain/claimchain/foundation/ledger/genesis"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Signing keys used across the tests.
const (
	richKey  = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	poorKey  = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
	thirdKey = "aed31b6b5a341af8f27e66fb0b7633cf20fc27049e3eb7f6f623a4655b719ebb"
)

var nopEv = func(v string, args ...any) {}

// =============================================================================

func Test_EconomicFold(t *testing.T) {
	rich := accountOf(t, richKey)
	poor := accountOf(t, poorKey)
	third := accountOf(t, thirdKey)
	miner := database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")

	gen := testGenesis(map[string]float64{
		string(rich):  1000,
		string(poor):  5,
		string(third): 1000,
	})

	store, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open storage: %v", failed, err)
	}

	db, err := database.New(gen, store, nopEv)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
	}
	t.Logf("\t%s\tShould be able to open database.", success)

	t.Log("Given the need to validate the economic fold across a chain of blocks.")
	{
		t.Log("\tWhen reserving a free item.")
		{
			mineBlock(t, db, gen, miner,
				sign(t, richKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindRequest, ItemID: "item_42"}),
			)

			checkBalance(t, db, rich, 990)
			item := checkItem(t, db, "item_42")
			if item.HolderID != rich || !equal(item.Value, 10) || item.Demand != 0 || !equal(item.Escrow, 0) {
				t.Fatalf("\t%s\tShould have item reserved at base value: %+v", failed, item)
			}
			t.Logf("\t%s\tShould have item reserved at base value.", success)
		}

		t.Log("\tWhen an underfunded account requests a held item.")
		{
			mineBlock(t, db, gen, miner,
				sign(t, poorKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindRequest, ItemID: "item_42"}),
				sign(t, poorKey, database.UserTx{ChainID: 1, Nonce: 2, Kind: database.TxKindRequest, ItemID: "item_42"}),
			)

			// First penalty at demand 0 is 0.5, second at demand 1 is 1.5.
			checkBalance(t, db, poor, 3)
			item := checkItem(t, db, "item_42")
			if item.HolderID != rich || !equal(item.Value, 15) || item.Demand != 2 || !equal(item.Escrow, 2) {
				t.Fatalf("\t%s\tShould have escrow and demand grow with each penalty: %+v", failed, item)
			}
			t.Logf("\t%s\tShould have escrow and demand grow with each penalty.", success)
		}

		t.Log("\tWhen the holder releases the item.")
		{
			mineBlock(t, db, gen, miner,
				sign(t, richKey, database.UserTx{ChainID: 1, Nonce: 2, Kind: database.TxKindRelease, ItemID: "item_42"}),
			)

			// Holder gets value 15 plus 2/3 of the 2.0 escrow.
			checkBalance(t, db, rich, 990+15+2.0*2/3)

			// The miner's coinbase carries the remaining escrow third.
			minerAccount, err := db.Query(miner)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to query the miner account: %v", failed, err)
			}
			if !equal(minerAccount.Balance, 3*gen.MiningReward+2.0/3) {
				t.Fatalf("\t%s\tShould have the escrow fee share in the miner coinbase, got %v.", failed, minerAccount.Balance)
			}
			t.Logf("\t%s\tShould have the escrow fee share in the miner coinbase.", success)

			item := checkItem(t, db, "item_42")
			if item.Reserved() || !equal(item.Value, 10) || item.Demand != 0 || !equal(item.Escrow, 0) {
				t.Fatalf("\t%s\tShould have item reset to base value on release: %+v", failed, item)
			}
			t.Logf("\t%s\tShould have item reset to base value on release.", success)
		}

		t.Log("\tWhen a funded account requests a held item.")
		{
			mineBlock(t, db, gen, miner,
				sign(t, thirdKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindRequest, ItemID: "item_42"}),
			)
			mineBlock(t, db, gen, miner,
				sign(t, richKey, database.UserTx{ChainID: 1, Nonce: 3, Kind: database.TxKindRequest, ItemID: "item_42"}),
			)

			// A fully funded request is a buyout: the item's value moves from
			// the requester to the previous holder and ownership changes.
			checkBalance(t, db, third, 1000-10+10)
			item := checkItem(t, db, "item_42")
			if item.HolderID != rich || item.Demand != 1 || !equal(item.Value, 10) {
				t.Fatalf("\t%s\tShould have ownership change hands on buyout: %+v", failed, item)
			}
			t.Logf("\t%s\tShould have ownership change hands on buyout.", success)
		}

		t.Log("\tWhen replaying the stored chain from genesis.")
		{
			replay, err := database.New(gen, store, nopEv)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to replay the stored chain: %v", failed, err)
			}
			t.Logf("\t%s\tShould be able to replay the stored chain.", success)

			want := db.CopyAccounts()
			got := replay.CopyAccounts()
			for accountID, account := range want {
				if !equal(got[accountID].Balance, account.Balance) || got[accountID].Nonce != account.Nonce {
					t.Fatalf("\t%s\tShould fold to identical balances on replay for %s.", failed, accountID)
				}
			}
			t.Logf("\t%s\tShould fold to identical balances on replay.", success)

			if replay.LatestBlock().Hash() != db.LatestBlock().Hash() {
				t.Fatalf("\t%s\tShould end the replay on the same tip.", failed)
			}
			t.Logf("\t%s\tShould end the replay on the same tip.", success)
		}
	}
}

func Test_BlockAllOrNothing(t *testing.T) {
	rich := accountOf(t, richKey)
	poor := accountOf(t, poorKey)
	miner := database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")

	gen := testGenesis(map[string]float64{
		string(rich): 1000,
		string(poor): 5,
	})

	store, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open storage: %v", failed, err)
	}

	db, err := database.New(gen, store, nopEv)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
	}

	t.Log("Given the need to validate a block is applied all or nothing.")
	{
		txs := []database.BlockTx{
			database.NewCoinbaseTx(1, miner, gen.MiningReward, 1),
			sign(t, richKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindTransfer, ToID: poor, Value: 100}),
			sign(t, poorKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindTransfer, ToID: rich, Value: 5000}),
		}

		block, err := database.POW(context.Background(), miner, gen.Difficulty, db.LatestBlock(), txs, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine the block: %v", failed, err)
		}

		if err := db.ApplyBlock(block); err == nil {
			t.Fatalf("\t%s\tShould reject a block containing a failing transaction.", failed)
		}
		t.Logf("\t%s\tShould reject a block containing a failing transaction.", success)

		checkBalance(t, db, rich, 1000)
		checkBalance(t, db, poor, 5)
		if db.LatestBlock().Header.Number != 0 {
			t.Fatalf("\t%s\tShould leave the tip untouched on rejection.", failed)
		}
		t.Logf("\t%s\tShould leave the tip untouched on rejection.", success)
	}
}

func Test_CoinbaseVerification(t *testing.T) {
	rich := accountOf(t, richKey)
	miner := database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")

	gen := testGenesis(map[string]float64{
		string(rich): 1000,
	})

	store, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open storage: %v", failed, err)
	}

	db, err := database.New(gen, store, nopEv)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
	}

	t.Log("Given the need to validate the coinbase pays exactly reward plus fee share.")
	{
		txs := []database.BlockTx{
			database.NewCoinbaseTx(1, miner, gen.MiningReward+1, 1),
			sign(t, richKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindRequest, ItemID: "item_1"}),
		}

		block, err := database.POW(context.Background(), miner, gen.Difficulty, db.LatestBlock(), txs, nopEv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine the block: %v", failed, err)
		}

		if err := db.ApplyBlock(block); err == nil {
			t.Fatalf("\t%s\tShould reject a block with an inflated coinbase.", failed)
		}
		t.Logf("\t%s\tShould reject a block with an inflated coinbase.", success)
	}
}

func Test_NonceValidation(t *testing.T) {
	rich := accountOf(t, richKey)

	gen := testGenesis(map[string]float64{
		string(rich): 1000,
	})

	store, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open storage: %v", failed, err)
	}

	db, err := database.New(gen, store, nopEv)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
	}

	t.Log("Given the need to validate transactions use strictly increasing nonces.")
	{
		tx := sign(t, richKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindRequest, ItemID: "item_1"})
		if err := db.ValidateNonce(tx.SignedTx); err != nil {
			t.Fatalf("\t%s\tShould accept the first nonce: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept the first nonce.", success)

		miner := database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")
		mineBlock(t, db, gen, miner, tx)

		if err := db.ValidateNonce(tx.SignedTx); err == nil {
			t.Fatalf("\t%s\tShould reject a replayed nonce.", failed)
		}
		t.Logf("\t%s\tShould reject a replayed nonce.", success)

		low := sign(t, richKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindRelease, ItemID: "item_1"})
		if err := db.CheckTx(low); err == nil {
			t.Fatalf("\t%s\tShould reject a transaction with a stale nonce.", failed)
		}
		t.Logf("\t%s\tShould reject a transaction with a stale nonce.", success)

		next := sign(t, richKey, database.UserTx{ChainID: 1, Nonce: 2, Kind: database.TxKindRelease, ItemID: "item_1"})
		if err := db.CheckTx(next); err != nil {
			t.Fatalf("\t%s\tShould accept the next nonce: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept the next nonce.", success)
	}
}

func Test_IntegrityAndRepair(t *testing.T) {
	rich := accountOf(t, richKey)
	miner := database.AccountID("0xFef311483Cc040e1A89fb9bb469eeB8A70935EF8")

	gen := testGenesis(map[string]float64{
		string(rich): 1000,
	})

	store, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open storage: %v", failed, err)
	}

	db, err := database.New(gen, store, nopEv)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open database: %v", failed, err)
	}

	t.Log("Given the need to detect and truncate a corrupted stored block.")
	{
		mineBlock(t, db, gen, miner, sign(t, richKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindRequest, ItemID: "item_1"}))
		mineBlock(t, db, gen, miner, sign(t, richKey, database.UserTx{ChainID: 1, Nonce: 2, Kind: database.TxKindRelease, ItemID: "item_1"}))

		if badBlock, err := db.IntegrityCheck(); err != nil || badBlock != 0 {
			t.Fatalf("\t%s\tShould report a sound chain as sound: blk[%d]: %v", failed, badBlock, err)
		}
		t.Logf("\t%s\tShould report a sound chain as sound.", success)

		if err := db.TamperBlock(2); err != nil {
			t.Fatalf("\t%s\tShould be able to tamper with a stored block: %v", failed, err)
		}

		badBlock, err := db.IntegrityCheck()
		if err == nil || badBlock != 2 {
			t.Fatalf("\t%s\tShould find the corrupted block: blk[%d]: %v", failed, badBlock, err)
		}
		t.Logf("\t%s\tShould find the corrupted block.", success)

		if err := db.Truncate(badBlock); err != nil {
			t.Fatalf("\t%s\tShould be able to truncate the bad suffix: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to truncate the bad suffix.", success)

		if badBlock, err := db.IntegrityCheck(); err != nil || badBlock != 0 {
			t.Fatalf("\t%s\tShould be sound again after the truncate: blk[%d]: %v", failed, badBlock, err)
		}
		t.Logf("\t%s\tShould be sound again after the truncate.", success)

		if db.LatestBlock().Header.Number != 1 {
			t.Fatalf("\t%s\tShould have the tip back on the last good block.", failed)
		}
		t.Logf("\t%s\tShould have the tip back on the last good block.", success)
	}
}

// =============================================================================

func testGenesis(balances map[string]float64) genesis.Genesis {
	return genesis.Genesis{
		ChainID:        1,
		TransPerBlock:  10,
		Difficulty:     1,
		MiningReward:   700,
		BaseValue:      10,
		PenaltyBase:    0.05,
		PenaltyStep:    0.10,
		PenaltyCap:     1.0,
		ValueIncrement: 2.5,
		Balances:       balances,
	}
}

func accountOf(t *testing.T, hexKey string) database.AccountID {
	t.Helper()

	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the private key: %v", failed, err)
	}

	return database.PublicKeyToAccountID(pk.PublicKey)
}

func sign(t *testing.T, hexKey string, tx database.UserTx) database.BlockTx {
	t.Helper()

	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the private key: %v", failed, err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	return database.NewBlockTx(signedTx)
}

// mineBlock assembles a block from the transactions with a correct coinbase
// in front, performs the work and folds it into the database.
func mineBlock(t *testing.T, db *database.Database, gen genesis.Genesis, miner database.AccountID, txs ...database.BlockTx) {
	t.Helper()

	_, dropped, feeShare := db.SelectValid(txs)
	if len(dropped) != 0 {
		t.Fatalf("\t%s\tShould have all candidate transactions apply: dropped %d.", failed, len(dropped))
	}

	latestBlock := db.LatestBlock()
	coinbase := database.NewCoinbaseTx(gen.ChainID, miner, gen.MiningReward+feeShare, latestBlock.Header.Number+1)
	trans := append([]database.BlockTx{coinbase}, txs...)

	block, err := database.POW(context.Background(), miner, gen.Difficulty, latestBlock, trans, nopEv)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine the block: %v", failed, err)
	}

	if err := block.ValidateBlock(latestBlock, nopEv); err != nil {
		t.Fatalf("\t%s\tShould have the mined block validate: %v", failed, err)
	}

	if err := db.ApplyBlock(block); err != nil {
		t.Fatalf("\t%s\tShould be able to apply the block: %v", failed, err)
	}

	if err := db.Write(block); err != nil {
		t.Fatalf("\t%s\tShould be able to store the block: %v", failed, err)
	}
}

func checkBalance(t *testing.T, db *database.Database, accountID database.AccountID, want float64) {
	t.Helper()

	account, err := db.Query(accountID)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to query account %s: %v", failed, accountID, err)
	}

	if !equal(account.Balance, want) {
		t.Fatalf("\t%s\tShould have correct balance for %s, got %v, exp %v.", failed, accountID, account.Balance, want)
	}
	t.Logf("\t%s\tShould have correct balance for %s.", success, accountID)
}

func checkItem(t *testing.T, db *database.Database, itemID string) database.Item {
	t.Helper()

	item, err := db.QueryItem(itemID)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to query item %s: %v", failed, itemID, err)
	}

	return item
}

func equal(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
