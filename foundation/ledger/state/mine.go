package state

import (
	"context"
	"errors"

	"github.com/claimchain/claimchain/foundation/events"
	"github.com/claimchain/claimchain/foundation/ledger/database"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are no transactions that could go into it.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can
// become the next block in the chain.
func (s *State) MineNewBlock(ctx context.Context) (database.Block, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there any transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: assemble candidate transactions")

	// Pick the oldest admitted transactions and re-verify them against the
	// current ledger. Transactions that stopped applying since admission
	// are dropped from the pool for good.
	trans := s.mempool.PickOldest(int(s.genesis.TransPerBlock))
	valid, dropped, feeShare := s.db.SelectValid(trans)

	for _, tx := range dropped {
		s.mempool.Delete(tx)
		s.rejectTransaction(tx, errors.New("transaction no longer applies"))
	}

	if len(valid) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	// The coinbase leads the block and pays the mining reward plus the
	// escrow fee share earned by the releases being folded.
	latestBlock := s.db.LatestBlock()
	coinbase := database.NewCoinbaseTx(s.genesis.ChainID, s.beneficiaryID, s.genesis.MiningReward+feeShare, latestBlock.Header.Number+1)
	trans = append([]database.BlockTx{coinbase}, valid...)

	s.evHandler("state: MineNewBlock: MINING: perform POW")

	// Attempt to create a new block by solving the POW puzzle.
	// This can be cancelled.
	block, err := database.POW(ctx, s.beneficiaryID, s.genesis.Difficulty, latestBlock, trans, s.evHandler)
	if err != nil {
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return database.Block{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: commit to local state")

	// If the tip moved while we were mining, this fails and the caller
	// discards the candidate and restarts against the new tip.
	if err := s.commitBlock(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// ProcessPeerBlock takes a block received from a peer, validates it and if
// that passes, adds the block to the chain. A fork two or more blocks ahead
// surfaces as database.ErrChainForked for the transport to act on.
func (s *State) ProcessPeerBlock(from string, blockData database.BlockData) error {
	s.evHandler("state: ProcessPeerBlock: started: peer[%s]: blk[%s]", from, blockData.Hash)
	defer s.evHandler("state: ProcessPeerBlock: completed")

	// If a mining operation is running it needs to stop immediately. The
	// worker will not restart mining until done is called, which lets this
	// function complete its state changes first.
	done := s.signalCancelMining()
	defer func() {
		s.evHandler("state: ProcessPeerBlock: signal mining to continue")
		done()
	}()

	block, err := database.ToBlock(blockData)
	if err != nil {
		return err
	}

	return s.commitBlock(block)
}

// =============================================================================

// commitBlock validates the block against the tip and makes it the new tip:
// ledger fold, storage write, mempool cleanup. All-or-nothing, serialized
// with chain replacement.
func (s *State) commitBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := block.ValidateBlock(s.db.LatestBlock(), s.evHandler); err != nil {
		return err
	}

	if err := s.db.ApplyBlock(block); err != nil {
		return err
	}

	if err := s.db.Write(block); err != nil {
		return err
	}

	for _, tx := range block.Trans.Values() {
		s.mempool.Delete(tx)
	}

	s.evHandler("state: commitBlock: blk[%d] accepted: hash[%s]", block.Header.Number, block.Hash())
	s.emit(events.KindBlockAccepted, "block accepted", map[string]any{
		"number": block.Header.Number,
		"hash":   block.Hash(),
		"trans":  len(block.Trans.Values()),
	})

	return nil
}
