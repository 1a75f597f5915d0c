package state

import (
	"fmt"

	"github.com/claimchain/claimchain/foundation/events"
	"github.com/claimchain/claimchain/foundation/ledger/database"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion
// into the mempool, shares it with the peers and signals a mining operation.
func (s *State) SubmitWalletTransaction(signedTx database.SignedTx) error {
	s.evHandler("state: SubmitWalletTransaction: started: tx[%s]", signedTx)
	defer s.evHandler("state: SubmitWalletTransaction: completed")

	tx := database.NewBlockTx(signedTx)

	if err := s.admitTransaction(tx); err != nil {
		return err
	}

	s.SendTxToPeers(tx)

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return nil
}

// ProcessPeerTransaction accepts a transaction delivered by a peer node into
// the mempool and signals a mining operation. The transaction is not shared
// again to keep it from echoing around the network.
func (s *State) ProcessPeerTransaction(from string, tx database.BlockTx) error {
	s.evHandler("state: ProcessPeerTransaction: started: peer[%s]: tx[%s]", from, tx)
	defer s.evHandler("state: ProcessPeerTransaction: completed")

	if err := s.admitTransaction(tx); err != nil {
		return err
	}

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return nil
}

// =============================================================================

// admitTransaction performs the admission checks against the current ledger
// and places the transaction in the mempool. The economic check is soft: the
// ledger may shift before the transaction is mined, so everything is
// re-verified at block assembly and block validation time.
func (s *State) admitTransaction(tx database.BlockTx) error {
	if err := tx.Validate(); err != nil {
		s.rejectTransaction(tx, err)
		return fmt.Errorf("validate: %w", err)
	}

	if err := s.db.ValidateNonce(tx.SignedTx); err != nil {
		s.rejectTransaction(tx, err)
		return fmt.Errorf("nonce: %w", err)
	}

	if err := s.db.CheckTx(tx); err != nil {
		s.rejectTransaction(tx, err)
		return fmt.Errorf("precondition: %w", err)
	}

	count, err := s.mempool.Add(tx)
	if err != nil {
		s.rejectTransaction(tx, err)
		return fmt.Errorf("mempool: %w", err)
	}

	s.evHandler("state: admitTransaction: admitted: tx[%s]: pool[%d]", tx, count)
	s.emit(events.KindTxAdmitted, "transaction admitted", map[string]any{
		"tx":   tx.String(),
		"pool": count,
	})

	return nil
}

// rejectTransaction reports a refused admission to the subscribers.
func (s *State) rejectTransaction(tx database.BlockTx, err error) {
	s.evHandler("state: admitTransaction: rejected: tx[%s]: %s", tx, err)
	s.emit(events.KindTxRejected, "transaction rejected", map[string]any{
		"tx":     tx.String(),
		"reason": err.Error(),
	})
}
