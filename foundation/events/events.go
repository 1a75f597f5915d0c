// Package events allows for the registering and receiving of events.
package events

import (
	"fmt"
	"sync"
)

// Kind classifies the events subscribers can receive.
type Kind string

// Set of event kinds emitted by the node.
const (
	KindBlockAccepted    Kind = "block_accepted"
	KindChainReplaced    Kind = "chain_replaced"
	KindTxAdmitted       Kind = "tx_admitted"
	KindTxRejected       Kind = "tx_rejected"
	KindPeerConnected    Kind = "peer_connected"
	KindPeerDisconnected Kind = "peer_disconnected"
	KindIntegrity        Kind = "integrity_changed"
	KindNodeLog          Kind = "log"
)

// Event is a single notification delivered to subscribers.
type Event struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// =============================================================================

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m  map[string]chan Event
	mu sync.RWMutex
}

// New constructs an events value for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan Event),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used
// to receive events.
func (evt *Events) Acquire(id string) chan Event {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	// Since an event is dropped if the subscriber is not ready to receive,
	// this arbitrary buffer gives a websocket subscriber enough slack to
	// not lose events during a slow send.
	const messageBuffer = 100

	evt.m[id] = make(chan Event, messageBuffer)
	return evt.m[id]
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send delivers the event to every registered channel. Send will not block
// waiting for a receiver on any given channel.
func (evt *Events) Send(event Event) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- event:
		default:
		}
	}
}
