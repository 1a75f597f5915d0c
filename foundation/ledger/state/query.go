package state

import (
	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/claimchain/claimchain/foundation/ledger/genesis"
	"github.com/claimchain/claimchain/foundation/ledger/peer"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns a copy of the current latest block.
func (s *State) RetrieveLatestBlock() database.Block {
	return s.db.LatestBlock()
}

// RetrieveHost returns a copy of the host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// RetrieveMempool returns a copy of the mempool in admission order.
func (s *State) RetrieveMempool() []database.BlockTx {
	return s.mempool.Copy()
}

// =============================================================================

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryAccounts returns a copy of the account ledger.
func (s *State) QueryAccounts() map[database.AccountID]database.Account {
	return s.db.CopyAccounts()
}

// QueryAccount returns the account for the specified account id.
func (s *State) QueryAccount(accountID database.AccountID) (database.Account, error) {
	return s.db.Query(accountID)
}

// QueryItems returns a copy of the item reservation records.
func (s *State) QueryItems() map[string]database.Item {
	return s.db.CopyItems()
}

// QueryItem returns the record for the specified item id.
func (s *State) QueryItem(itemID string) (database.Item, error) {
	return s.db.QueryItem(itemID)
}

// QueryBlocksByNumber returns the set of blocks based on block numbers. This
// function reads the chain from storage.
func (s *State) QueryBlocksByNumber(from uint64, to uint64) []database.Block {
	if from == QueryLatest {
		from = s.db.LatestBlock().Header.Number
		to = from
	}
	if to == QueryLatest {
		to = s.db.LatestBlock().Header.Number
	}

	var blocks []database.Block
	for i := from; i <= to; i++ {
		block, err := s.db.GetBlock(i)
		if err != nil {
			s.evHandler("state: QueryBlocksByNumber: WARNING: %s", err)
			return nil
		}
		blocks = append(blocks, block)
	}

	return blocks
}
