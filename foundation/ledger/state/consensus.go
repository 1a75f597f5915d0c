package state

import (
	"fmt"

	"github.com/claimchain/claimchain/foundation/events"
	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/claimchain/claimchain/foundation/ledger/signature"
)

// ProcessChainResponse evaluates a full chain received from a peer and
// decides whether to replace the local chain with it. The candidate wins
// only when it is strictly longer, starts from our genesis and folds
// cleanly from block 1. A rejected candidate is reported, not an error.
func (s *State) ProcessChainResponse(from string, blockDatas []database.BlockData) error {
	s.evHandler("state: ProcessChainResponse: started: peer[%s]: blocks[%d]", from, len(blockDatas))
	defer s.evHandler("state: ProcessChainResponse: completed")

	candidateLen := uint64(len(blockDatas))

	// Consensus acceptance is monotonic in length: equal or shorter
	// candidates never replace the local chain.
	localLen := s.db.LatestBlock().Header.Number
	if candidateLen <= localLen {
		s.evHandler("state: ProcessChainResponse: rejected: candidate[%d] not longer than local[%d]", candidateLen, localLen)
		return nil
	}

	// The candidate must grow from the same origin we do.
	if blockDatas[0].Header.Number != 1 || blockDatas[0].Header.PrevBlockHash != signature.ZeroHash {
		s.evHandler("state: ProcessChainResponse: rejected: candidate doesn't start from genesis")
		return nil
	}

	blocks := make([]database.Block, len(blockDatas))
	for i, blockData := range blockDatas {
		block, err := database.ToBlock(blockData)
		if err != nil {
			s.evHandler("state: ProcessChainResponse: rejected: block %d malformed: %s", blockData.Header.Number, err)
			return nil
		}
		blocks[i] = block
	}

	// Stop any in-flight mining before swapping the chain underneath it.
	done := s.signalCancelMining()
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check length under the lock: an append may have landed since.
	localLen = s.db.LatestBlock().Header.Number
	if candidateLen <= localLen {
		s.evHandler("state: ProcessChainResponse: rejected: candidate[%d] not longer than local[%d]", candidateLen, localLen)
		return nil
	}

	// Validate and fold the whole candidate from genesis, then atomically
	// swap storage and ledger. A candidate that fails anywhere leaves the
	// local state untouched.
	if err := s.db.ReplaceChain(blocks); err != nil {
		s.evHandler("state: ProcessChainResponse: rejected: %s", err)
		return nil
	}

	s.reconcileMempool(blocks)

	s.evHandler("state: ProcessChainResponse: chain replaced: old[%d] new[%d]", localLen, candidateLen)
	s.emit(events.KindChainReplaced, "chain replaced", map[string]any{
		"old_length": localLen,
		"new_length": candidateLen,
		"peer":       from,
	})

	return nil
}

// reconcileMempool drops pool entries now present in the adopted chain and
// re-checks the rest against the rebuilt ledger, discarding any that no
// longer apply.
func (s *State) reconcileMempool(blocks []database.Block) {
	for _, block := range blocks {
		for _, tx := range block.Trans.Values() {
			if tx.Kind == database.TxKindCoinbase {
				continue
			}
			s.mempool.Delete(tx)
		}
	}

	for _, tx := range s.mempool.Copy() {
		if err := s.db.CheckTx(tx); err != nil {
			s.mempool.Delete(tx)
			s.rejectTransaction(tx, fmt.Errorf("dropped after chain replacement: %w", err))
		}
	}
}
