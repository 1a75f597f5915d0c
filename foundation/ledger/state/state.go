// Package state is the core API for the ledger node and implements all the
// business rules and processing.
package state

import (
	"sync"

	"github.com/claimchain/claimchain/foundation/events"
	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/claimchain/claimchain/foundation/ledger/genesis"
	"github.com/claimchain/claimchain/foundation/ledger/mempool"
	"github.com/claimchain/claimchain/foundation/ledger/peer"
)

// EventHandler defines a function that is called when events
// occur in the processing of blocks and transactions.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining and the periodic background jobs.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
}

// Transport interface represents the behavior required to be implemented by
// any package providing support for moving blocks, transactions and chain
// snapshots between nodes.
type Transport interface {
	Shutdown()
	Connect(host string) error
	SendBlockToPeers(blockData database.BlockData)
	SendTxToPeers(tx database.BlockTx)
	RequestChains()
	PeerStatus() []peer.Status
}

// =============================================================================

// Config represents the configuration required to start the node.
type Config struct {
	BeneficiaryID database.AccountID
	Host          string
	Genesis       genesis.Genesis
	Storage       database.Storage
	MempoolSize   int
	KnownPeers    *peer.PeerSet
	Evts          *events.Events
	EvHandler     EventHandler
}

// State manages the ledger node.
type State struct {
	mu          sync.Mutex
	allowMining bool
	integrityOK bool

	beneficiaryID database.AccountID
	host          string
	evHandler     EventHandler
	evts          *events.Events

	genesis    genesis.Genesis
	knownPeers *peer.PeerSet
	mempool    *mempool.Mempool
	db         *database.Database

	// The Worker and Net are not set by the constructor. The calls to
	// worker.Run and p2p.Start assign themselves and start everything up
	// and running for the node.
	Worker Worker
	Net    Transport
}

// New constructs a new state value for node management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	// Access the storage for the chain and replay what it holds.
	db, err := database.New(cfg.Genesis, cfg.Storage, ev)
	if err != nil {
		return nil, err
	}

	state := State{
		allowMining: true,
		integrityOK: true,

		beneficiaryID: cfg.BeneficiaryID,
		host:          cfg.Host,
		evHandler:     ev,
		evts:          cfg.Evts,

		genesis:    cfg.Genesis,
		knownPeers: cfg.KnownPeers,
		mempool:    mempool.New(cfg.MempoolSize),
		db:         db,
	}

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the database is properly closed.
	defer s.db.Close()

	// Stop all chain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// IsMiningAllowed identifies if mining is on. Mining is turned off during a
// full resync since the chain is being rebuilt from peers.
func (s *State) IsMiningAllowed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.allowMining
}

// Resync resets the chain both in storage and in memory and asks the peers
// for their chains. This is used to recover from a fork we lost.
func (s *State) Resync() error {
	s.evHandler("state: resync: started")
	defer s.evHandler("state: resync: completed")

	done := s.signalCancelMining()
	defer done()

	s.mu.Lock()
	s.allowMining = false
	s.mempool.Truncate()
	err := s.db.Reset()
	s.mu.Unlock()

	if err != nil {
		return err
	}

	s.RequestPeerChains()

	s.mu.Lock()
	s.allowMining = true
	s.mu.Unlock()

	return nil
}

// =============================================================================

// signalCancelMining asks the worker to stop any in-flight mining operation
// and returns the function that lets it continue. Safe when no worker has
// registered yet.
func (s *State) signalCancelMining() (done func()) {
	if s.Worker == nil {
		return func() {}
	}

	return s.Worker.SignalCancelMining()
}

// emit delivers an event to the subscribers when an events bus is wired.
func (s *State) emit(kind events.Kind, message string, data map[string]any) {
	if s.evts != nil {
		s.evts.Send(events.Event{Kind: kind, Message: message, Data: data})
	}
}
