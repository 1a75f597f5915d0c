package state

import (
	"github.com/claimchain/claimchain/foundation/events"
)

// CheckIntegrity re-validates the stored chain from genesis and returns the
// number of the first bad block when something is wrong. The check is side
// effect free; the integrity event fires only when the status changes.
func (s *State) CheckIntegrity() (uint64, error) {
	s.evHandler("state: CheckIntegrity: started")
	defer s.evHandler("state: CheckIntegrity: completed")

	badBlock, err := s.db.IntegrityCheck()

	s.mu.Lock()
	ok := err == nil
	changed := ok != s.integrityOK
	s.integrityOK = ok
	s.mu.Unlock()

	if changed {
		data := map[string]any{"ok": ok}
		if err != nil {
			data["bad_block"] = badBlock
			data["reason"] = err.Error()
		}
		s.emit(events.KindIntegrity, "integrity status changed", data)
	}

	if err != nil {
		s.evHandler("state: CheckIntegrity: WARNING: blk[%d]: %s", badBlock, err)
	}

	return badBlock, err
}

// CorruptBlock rewrites a stored block with a damaged field so integrity
// detection and repair can be demonstrated.
func (s *State) CorruptBlock(num uint64) error {
	s.evHandler("state: CorruptBlock: blk[%d]", num)

	return s.db.TamperBlock(num)
}

// Repair truncates the invalid suffix found by the integrity check and asks
// the peers for their chains to fill the gap. It returns the number of the
// first block that was cut, or 0 when nothing needed repair.
func (s *State) Repair() (uint64, error) {
	s.evHandler("state: Repair: started")
	defer s.evHandler("state: Repair: completed")

	badBlock, err := s.db.IntegrityCheck()
	if err == nil {
		s.evHandler("state: Repair: chain is sound, nothing to do")
		return 0, nil
	}

	done := s.signalCancelMining()
	defer done()

	s.mu.Lock()
	truncErr := s.db.Truncate(badBlock)
	s.mu.Unlock()

	if truncErr != nil {
		return badBlock, truncErr
	}

	// Refresh the integrity status now that the bad suffix is gone.
	if _, err := s.CheckIntegrity(); err != nil {
		return badBlock, err
	}

	s.RequestPeerChains()

	return badBlock, nil
}
