package state

import (
	"errors"

	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/claimchain/claimchain/foundation/ledger/peer"
)

// ChainBlocks returns the full stored chain in wire form. Served to peers
// that asked for a chain snapshot.
func (s *State) ChainBlocks() []database.BlockData {
	return s.db.CopyChain()
}

// =============================================================================
// These methods push local changes out through the transport. They are all
// safe to call before a transport has registered.

// SendBlockToPeers shares a freshly mined block with the network.
func (s *State) SendBlockToPeers(block database.Block) {
	if s.Net != nil {
		s.Net.SendBlockToPeers(database.NewBlockData(block))
	}
}

// SendTxToPeers shares a freshly admitted transaction with the network.
func (s *State) SendTxToPeers(tx database.BlockTx) {
	if s.Net != nil {
		s.Net.SendTxToPeers(tx)
	}
}

// RequestPeerChains asks every connected peer for its full chain. Responses
// arrive asynchronously through ProcessChainResponse.
func (s *State) RequestPeerChains() {
	if s.Net != nil {
		s.Net.RequestChains()
	}
}

// ConnectToPeer dials the specified host and performs the announce
// handshake.
func (s *State) ConnectToPeer(host string) error {
	if s.Net == nil {
		return errors.New("no transport is running")
	}

	return s.Net.Connect(host)
}

// NetPeerStatus returns the live connection information per peer.
func (s *State) NetPeerStatus() []peer.Status {
	if s.Net == nil {
		return nil
	}

	return s.Net.PeerStatus()
}
