package mempool_test

import (
	"errors"
	"testing"

	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/claimchain/claimchain/foundation/ledger/mempool"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Signing keys used across the tests.
const (
	signPavel = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	signBill  = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
	signEd    = "aed31b6b5a341af8f27e66fb0b7633cf20fc27049e3eb7f6f623a4655b719ebb"
)

func sign(t *testing.T, hexKey string, nonce uint64) database.BlockTx {
	t.Helper()

	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the private key: %v", failed, err)
	}

	tx := database.UserTx{ChainID: 1, Nonce: nonce, Kind: database.TxKindRequest, ItemID: "item_1"}
	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	return database.NewBlockTx(signedTx)
}

// =============================================================================

func Test_Admission(t *testing.T) {
	t.Log("Given the need to bound the pool and refuse duplicates.")
	{
		mp := mempool.New(2)

		tx1 := sign(t, signPavel, 1)
		if _, err := mp.Add(tx1); err != nil {
			t.Fatalf("\t%s\tShould be able to add the first transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to add the first transaction.", success)

		if _, err := mp.Add(tx1); !errors.Is(err, mempool.ErrDuplicate) {
			t.Fatalf("\t%s\tShould refuse a duplicate transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse a duplicate transaction.", success)

		if _, err := mp.Add(sign(t, signBill, 1)); err != nil {
			t.Fatalf("\t%s\tShould be able to add a second transaction: %v", failed, err)
		}

		if _, err := mp.Add(sign(t, signEd, 1)); !errors.Is(err, mempool.ErrFull) {
			t.Fatalf("\t%s\tShould refuse a transaction once the pool is full: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse a transaction once the pool is full.", success)

		if mp.Count() != 2 {
			t.Fatalf("\t%s\tShould have two transactions in the pool, got %d.", failed, mp.Count())
		}
		t.Logf("\t%s\tShould have two transactions in the pool.", success)
	}
}

func Test_PickOldest(t *testing.T) {
	t.Log("Given the need to hand transactions to the miner in admission order.")
	{
		mp := mempool.New(0)

		txs := []database.BlockTx{
			sign(t, signPavel, 1),
			sign(t, signBill, 1),
			sign(t, signEd, 1),
			sign(t, signPavel, 2),
		}

		for _, tx := range txs {
			if _, err := mp.Add(tx); err != nil {
				t.Fatalf("\t%s\tShould be able to add the transaction: %v", failed, err)
			}
		}

		picked := mp.PickOldest(2)
		if len(picked) != 2 {
			t.Fatalf("\t%s\tShould pick exactly two transactions, got %d.", failed, len(picked))
		}
		for i := range picked {
			if !picked[i].Equals(txs[i]) {
				t.Fatalf("\t%s\tShould pick transactions in admission order.", failed)
			}
		}
		t.Logf("\t%s\tShould pick transactions in admission order.", success)

		if mp.Count() != 4 {
			t.Fatalf("\t%s\tShould leave picked transactions in the pool.", failed)
		}
		t.Logf("\t%s\tShould leave picked transactions in the pool.", success)

		all := mp.PickOldest(-1)
		if len(all) != 4 || !all[3].Equals(txs[3]) {
			t.Fatalf("\t%s\tShould return everything in order for a negative count.", failed)
		}
		t.Logf("\t%s\tShould return everything in order for a negative count.", success)

		if err := mp.Delete(txs[1]); err != nil {
			t.Fatalf("\t%s\tShould be able to delete a transaction: %v", failed, err)
		}
		if mp.Count() != 3 {
			t.Fatalf("\t%s\tShould have three transactions after the delete.", failed)
		}
		t.Logf("\t%s\tShould have three transactions after the delete.", success)

		mp.Truncate()
		if mp.Count() != 0 {
			t.Fatalf("\t%s\tShould have an empty pool after the truncate.", failed)
		}
		t.Logf("\t%s\tShould have an empty pool after the truncate.", success)
	}
}
