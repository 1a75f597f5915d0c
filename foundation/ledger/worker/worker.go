// Package worker implements mining and the periodic background jobs for
// the ledger node.
package worker

import (
	"sync"
	"time"

	"github.com/claimchain/claimchain/foundation/ledger/state"
)

// syncInterval represents the interval for asking the peers for their
// chains so a node that fell behind catches up on its own.
const syncInterval = time.Minute

// integrityInterval represents the interval for re-validating the stored
// chain from genesis.
const integrityInterval = 5 * time.Minute

// =============================================================================

// Worker manages the POW workflow and the background timers for the node.
type Worker struct {
	state           *state.State
	wg              sync.WaitGroup
	syncTicker      *time.Ticker
	integrityTicker *time.Ticker
	shut            chan struct{}
	startMining     chan bool
	cancelMining    chan chan struct{}
	evHandler       state.EventHandler
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, evHandler state.EventHandler) {
	w := Worker{
		state:           st,
		syncTicker:      time.NewTicker(syncInterval),
		integrityTicker: time.NewTicker(integrityInterval),
		shut:            make(chan struct{}),
		startMining:     make(chan bool, 1),
		cancelMining:    make(chan chan struct{}, 1),
		evHandler:       evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Ask the peers for their chains before starting any support G's.
	st.RequestPeerChains()

	// Load the set of operations we need to run.
	operations := []func(){
		w.miningOperations,
		w.syncOperations,
		w.integrityOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: stop tickers")
	w.syncTicker.Stop()
	w.integrityTicker.Stop()

	w.evHandler("worker: shutdown: signal cancel mining")
	done := w.SignalCancelMining()
	done()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartMining starts a mining operation. If there is already a signal
// pending in the channel, just return since a mining operation will start.
func (w *Worker) SignalStartMining() {
	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: SignalStartMining: mining is turned off")
		return
	}

	select {
	case w.startMining <- true:
	default:
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining signals the G executing the runMiningOperation function
// to stop immediately. That G will not restart mining until the returned
// done function is called, which lets the caller finish its state changes
// first.
func (w *Worker) SignalCancelMining() (done func()) {
	wait := make(chan struct{})

	select {
	case w.cancelMining <- wait:
	default:
	}
	w.evHandler("worker: SignalCancelMining: cancel mining signaled")

	return func() { close(wait) }
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
