package state_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/claimchain/claimchain/foundation/ledger/database/storage/memory"
	"github.com/claimchain/claimchain/foundation/ledger/genesis"
	"github.com/claimchain/claimchain/foundation/ledger/peer"
	"github.com/claimchain/claimchain/foundation/ledger/state"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Signing keys used across the tests.
const (
	aliceKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	bobKey   = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
	minerKey = "aed31b6b5a341af8f27e66fb0b7633cf20fc27049e3eb7f6f623a4655b719ebb"
)

// =============================================================================

func Test_SubmitAndMine(t *testing.T) {
	st := newTestState(t)

	t.Log("Given the need to admit a wallet transaction and mine it into a block.")
	{
		if err := st.SubmitWalletTransaction(signTx(t, aliceKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindRequest, ItemID: "item_42"})); err != nil {
			t.Fatalf("\t%s\tShould be able to submit a wallet transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to submit a wallet transaction.", success)

		if st.QueryMempoolLength() != 1 {
			t.Fatalf("\t%s\tShould have the transaction in the mempool.", failed)
		}
		t.Logf("\t%s\tShould have the transaction in the mempool.", success)

		block, err := st.MineNewBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to mine a block.", success)

		if block.Header.Number != 1 || st.RetrieveLatestBlock().Hash() != block.Hash() {
			t.Fatalf("\t%s\tShould have the mined block as the tip.", failed)
		}
		t.Logf("\t%s\tShould have the mined block as the tip.", success)

		if st.QueryMempoolLength() != 0 {
			t.Fatalf("\t%s\tShould have an empty mempool after the block commits.", failed)
		}
		t.Logf("\t%s\tShould have an empty mempool after the block commits.", success)

		item, err := st.QueryItem("item_42")
		if err != nil || item.HolderID != accountOf(t, aliceKey) {
			t.Fatalf("\t%s\tShould have the item reserved by the requester: %v", failed, err)
		}
		t.Logf("\t%s\tShould have the item reserved by the requester.", success)

		if _, err := st.MineNewBlock(context.Background()); !errors.Is(err, state.ErrNoTransactions) {
			t.Fatalf("\t%s\tShould refuse to mine an empty block: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse to mine an empty block.", success)
	}
}

func Test_RejectedAdmission(t *testing.T) {
	st := newTestState(t)

	t.Log("Given the need to refuse transactions that can't apply.")
	{
		// Bob has no opening balance, so reserving costs more than he has.
		if err := st.SubmitWalletTransaction(signTx(t, bobKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindRequest, ItemID: "item_42"})); err == nil {
			t.Fatalf("\t%s\tShould refuse a transaction the sender can't fund.", failed)
		}
		t.Logf("\t%s\tShould refuse a transaction the sender can't fund.", success)

		if st.QueryMempoolLength() != 0 {
			t.Fatalf("\t%s\tShould keep a refused transaction out of the mempool.", failed)
		}
		t.Logf("\t%s\tShould keep a refused transaction out of the mempool.", success)
	}
}

func Test_PeerBlockAndFork(t *testing.T) {
	stA := newTestState(t)
	stB := newTestState(t)

	t.Log("Given the need to accept peer blocks and detect a fork.")
	{
		blockData := mineOn(t, stA, aliceKey, 1, "item_1")

		if err := stB.ProcessPeerBlock("nodeA", blockData); err != nil {
			t.Fatalf("\t%s\tShould be able to accept a valid peer block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to accept a valid peer block.", success)

		if stB.RetrieveLatestBlock().Hash() != stA.RetrieveLatestBlock().Hash() {
			t.Fatalf("\t%s\tShould have both nodes on the same tip.", failed)
		}
		t.Logf("\t%s\tShould have both nodes on the same tip.", success)

		// Advance node A two blocks further, then hand node B only the
		// newest one. That block is exactly two past B's tip, the smallest
		// gap that means node A is on a chain we can't append to.
		mineOn(t, stA, aliceKey, 2, "item_2")
		ahead := mineOn(t, stA, aliceKey, 3, "item_3")

		if err := stB.ProcessPeerBlock("nodeA", ahead); !errors.Is(err, database.ErrChainForked) {
			t.Fatalf("\t%s\tShould report a fork for a block two past the tip: %v", failed, err)
		}
		t.Logf("\t%s\tShould report a fork for a block two past the tip.", success)
	}
}

func Test_Consensus(t *testing.T) {
	stA := newTestState(t)
	stB := newTestState(t)

	t.Log("Given the need to adopt the longest valid chain.")
	{
		mineOn(t, stA, aliceKey, 1, "item_1")
		mineOn(t, stA, aliceKey, 2, "item_2")
		mineOn(t, stB, bobKey2, 1, "item_9")

		if err := stA.ProcessChainResponse("nodeB", stB.ChainBlocks()); err != nil {
			t.Fatalf("\t%s\tShould handle a shorter candidate without error: %v", failed, err)
		}
		if stA.RetrieveLatestBlock().Header.Number != 2 {
			t.Fatalf("\t%s\tShould keep the local chain over a shorter candidate.", failed)
		}
		t.Logf("\t%s\tShould keep the local chain over a shorter candidate.", success)

		if err := stB.ProcessChainResponse("nodeA", stA.ChainBlocks()); err != nil {
			t.Fatalf("\t%s\tShould be able to process a longer candidate: %v", failed, err)
		}
		if stB.RetrieveLatestBlock().Hash() != stA.RetrieveLatestBlock().Hash() {
			t.Fatalf("\t%s\tShould adopt the longer chain.", failed)
		}
		t.Logf("\t%s\tShould adopt the longer chain.", success)

		// Node B's own discarded block must not leak into the adopted
		// ledger.
		if _, err := stB.QueryItem("item_9"); err == nil {
			t.Fatalf("\t%s\tShould rebuild the ledger from the adopted chain only.", failed)
		}
		t.Logf("\t%s\tShould rebuild the ledger from the adopted chain only.", success)
	}
}

func Test_MempoolReconcile(t *testing.T) {
	stA := newTestState(t)
	stB := newTestState(t)

	t.Log("Given the need to reconcile the mempool after adopting a peer chain.")
	{
		// Mine alice's first transaction into node A's chain, then extend
		// the chain one more block so node B will adopt it.
		mined := signTx(t, aliceKey, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindRequest, ItemID: "item_1"})
		if err := stA.SubmitWalletTransaction(mined); err != nil {
			t.Fatalf("\t%s\tShould be able to submit a wallet transaction: %v", failed, err)
		}
		if _, err := stA.MineNewBlock(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
		}
		mineOn(t, stA, aliceKey, 2, "item_2")

		// Node B's pool holds three transactions: one the adopted chain
		// already mined, one that can't apply on the adopted ledger since
		// alice will hold item_1, and one that stays good.
		pending := []database.SignedTx{
			mined,
			signTx(t, aliceKey, database.UserTx{ChainID: 1, Nonce: 3, Kind: database.TxKindRequest, ItemID: "item_1"}),
			signTx(t, bobKey2, database.UserTx{ChainID: 1, Nonce: 1, Kind: database.TxKindRequest, ItemID: "item_3"}),
		}
		for _, tx := range pending {
			if err := stB.SubmitWalletTransaction(tx); err != nil {
				t.Fatalf("\t%s\tShould be able to submit a wallet transaction: %v", failed, err)
			}
		}
		if stB.QueryMempoolLength() != 3 {
			t.Fatalf("\t%s\tShould have three transactions pending before the adoption.", failed)
		}
		t.Logf("\t%s\tShould have three transactions pending before the adoption.", success)

		if err := stB.ProcessChainResponse("nodeA", stA.ChainBlocks()); err != nil {
			t.Fatalf("\t%s\tShould be able to adopt the longer chain: %v", failed, err)
		}
		if stB.RetrieveLatestBlock().Hash() != stA.RetrieveLatestBlock().Hash() {
			t.Fatalf("\t%s\tShould have both nodes on the same tip.", failed)
		}
		t.Logf("\t%s\tShould have both nodes on the same tip.", success)

		if stB.QueryMempoolLength() != 1 {
			t.Fatalf("\t%s\tShould keep only the still-good transaction, have %d.", failed, stB.QueryMempoolLength())
		}
		t.Logf("\t%s\tShould keep only the still-good transaction.", success)

		survivor := stB.RetrieveMempool()[0]
		from, err := survivor.FromAccount()
		if err != nil || from != accountOf(t, bobKey2) {
			t.Fatalf("\t%s\tShould keep the transaction from the untouched account: %v", failed, err)
		}
		t.Logf("\t%s\tShould keep the transaction from the untouched account.", success)
	}
}

func Test_SnapshotDuringAdoption(t *testing.T) {
	stA := newTestState(t)
	stB := newTestState(t)

	t.Log("Given the need to serve chain snapshots while a replacement is underway.")
	{
		for i := uint64(1); i <= 6; i++ {
			mineOn(t, stA, aliceKey, i, fmt.Sprintf("item_%d", i))
		}
		mineOn(t, stB, bobKey2, 1, "item_9")

		candidate := stA.ChainBlocks()

		// Hammer node B for snapshots while it swaps its chain out for
		// the candidate. Every snapshot must be a contiguous run from
		// block 1, never a half-written replacement.
		stop := make(chan struct{})
		errc := make(chan error, 1)
		go func() {
			for {
				select {
				case <-stop:
					errc <- nil
					return
				default:
				}

				for i, blockData := range stB.ChainBlocks() {
					if blockData.Header.Number != uint64(i)+1 {
						errc <- fmt.Errorf("snapshot has a gap at position %d: blk[%d]", i, blockData.Header.Number)
						return
					}
				}
			}
		}()

		if err := stB.ProcessChainResponse("nodeA", candidate); err != nil {
			t.Fatalf("\t%s\tShould be able to adopt the longer chain: %v", failed, err)
		}

		close(stop)
		if err := <-errc; err != nil {
			t.Fatalf("\t%s\tShould only serve contiguous snapshots: %v", failed, err)
		}
		t.Logf("\t%s\tShould only serve contiguous snapshots.", success)

		if stB.RetrieveLatestBlock().Hash() != stA.RetrieveLatestBlock().Hash() {
			t.Fatalf("\t%s\tShould have the adopted chain as the tip.", failed)
		}
		t.Logf("\t%s\tShould have the adopted chain as the tip.", success)
	}
}

func Test_IntegrityRepair(t *testing.T) {
	st := newTestState(t)

	t.Log("Given the need to find and repair a corrupted stored block.")
	{
		mineOn(t, st, aliceKey, 1, "item_1")
		mineOn(t, st, aliceKey, 2, "item_2")

		if _, err := st.CheckIntegrity(); err != nil {
			t.Fatalf("\t%s\tShould report a sound chain as sound: %v", failed, err)
		}
		t.Logf("\t%s\tShould report a sound chain as sound.", success)

		if err := st.CorruptBlock(2); err != nil {
			t.Fatalf("\t%s\tShould be able to corrupt a stored block: %v", failed, err)
		}

		badBlock, err := st.CheckIntegrity()
		if err == nil || badBlock != 2 {
			t.Fatalf("\t%s\tShould find the corrupted block: blk[%d]: %v", failed, badBlock, err)
		}
		t.Logf("\t%s\tShould find the corrupted block.", success)

		truncatedFrom, err := st.Repair()
		if err != nil || truncatedFrom != 2 {
			t.Fatalf("\t%s\tShould be able to repair from the bad block: blk[%d]: %v", failed, truncatedFrom, err)
		}
		t.Logf("\t%s\tShould be able to repair from the bad block.", success)

		if _, err := st.CheckIntegrity(); err != nil {
			t.Fatalf("\t%s\tShould be sound again after the repair: %v", failed, err)
		}
		if st.RetrieveLatestBlock().Header.Number != 1 {
			t.Fatalf("\t%s\tShould have the tip on the last good block.", failed)
		}
		t.Logf("\t%s\tShould be sound again after the repair.", success)
	}
}

// =============================================================================

// bobKey2 signs node B's divergent block in the consensus test. Alice can't
// be reused there since both nodes track her nonce independently.
const bobKey2 = "8dc79feefd3b86e2f9991def0e5ccd9a5128e104682407b308594bc1032ac7f0"

func newTestState(t *testing.T) *state.State {
	t.Helper()

	gen := genesis.Genesis{
		ChainID:        1,
		TransPerBlock:  10,
		Difficulty:     1,
		MiningReward:   700,
		BaseValue:      10,
		PenaltyBase:    0.05,
		PenaltyStep:    0.10,
		PenaltyCap:     1.0,
		ValueIncrement: 2.5,
		Balances: map[string]float64{
			string(accountOf(t, aliceKey)): 1000,
			string(accountOf(t, bobKey2)):  1000,
		},
	}

	store, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open storage: %v", failed, err)
	}

	st, err := state.New(state.Config{
		BeneficiaryID: accountOf(t, minerKey),
		Host:          "test",
		Genesis:       gen,
		Storage:       store,
		KnownPeers:    peer.NewPeerSet(),
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
	}

	return st
}

func accountOf(t *testing.T, hexKey string) database.AccountID {
	t.Helper()

	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the private key: %v", failed, err)
	}

	return database.PublicKeyToAccountID(pk.PublicKey)
}

func signTx(t *testing.T, hexKey string, tx database.UserTx) database.SignedTx {
	t.Helper()

	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to parse the private key: %v", failed, err)
	}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %v", failed, err)
	}

	return signedTx
}

// mineOn submits one request transaction and mines it, returning the block
// in wire form for feeding to another node.
func mineOn(t *testing.T, st *state.State, hexKey string, nonce uint64, itemID string) database.BlockData {
	t.Helper()

	if err := st.SubmitWalletTransaction(signTx(t, hexKey, database.UserTx{ChainID: 1, Nonce: nonce, Kind: database.TxKindRequest, ItemID: itemID})); err != nil {
		t.Fatalf("\t%s\tShould be able to submit a wallet transaction: %v", failed, err)
	}

	block, err := st.MineNewBlock(context.Background())
	if err != nil {
		t.Fatalf("\t%s\tShould be able to mine a block: %v", failed, err)
	}

	return database.NewBlockData(block)
}
