package p2p

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/claimchain/claimchain/foundation/events"
	"github.com/claimchain/claimchain/foundation/ledger/database"
	"github.com/claimchain/claimchain/foundation/ledger/peer"
)

// sendQueueSize bounds the per-peer outbound queue. A peer whose queue is
// full when we try to enqueue is treated as dead and disconnected.
const sendQueueSize = 64

// maxFrameSize bounds a single inbound frame. A chain response carries the
// full block list, so this is generous.
const maxFrameSize = 16 << 20

// dialTimeout bounds an outbound connection attempt.
const dialTimeout = 5 * time.Second

// Handler interface represents the behavior required to be implemented by
// the state layer to process inbound protocol traffic.
type Handler interface {
	ProcessPeerBlock(from string, blockData database.BlockData) error
	ProcessPeerTransaction(from string, tx database.BlockTx) error
	ProcessChainResponse(from string, blocks []database.BlockData) error
	ChainBlocks() []database.BlockData
}

// =============================================================================

// Config represents the configuration required to start the transport.
type Config struct {
	Host       string
	Handler    Handler
	KnownPeers *peer.PeerSet
	Evts       *events.Events
	EvHandler  func(v string, args ...any)
}

// Transport owns the listener and the set of live peer connections. It
// implements the state.Transport interface.
type Transport struct {
	host       string
	handler    Handler
	knownPeers *peer.PeerSet
	evts       *events.Events
	evHandler  func(v string, args ...any)

	listener net.Listener
	mu       sync.RWMutex
	conns    map[string]*conn
	wg       sync.WaitGroup
	shut     chan struct{}
}

// Start opens the listener, begins accepting peers and dials the known
// peers from configuration.
func Start(cfg Config) (*Transport, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	listener, err := net.Listen("tcp", cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Host, err)
	}

	t := Transport{
		host:       cfg.Host,
		handler:    cfg.Handler,
		knownPeers: cfg.KnownPeers,
		evts:       cfg.Evts,
		evHandler:  ev,
		listener:   listener,
		conns:      make(map[string]*conn),
		shut:       make(chan struct{}),
	}

	t.wg.Add(1)
	go t.accept()

	for _, p := range cfg.KnownPeers.Copy(cfg.Host) {
		if err := t.Connect(p.Host); err != nil {
			ev("p2p: Start: WARNING: connect to %s: %s", p.Host, err)
		}
	}

	return &t, nil
}

// Shutdown closes the listener and every peer connection and waits for the
// connection goroutines to drain.
func (t *Transport) Shutdown() {
	t.evHandler("p2p: shutdown: started")
	defer t.evHandler("p2p: shutdown: completed")

	close(t.shut)
	t.listener.Close()

	t.mu.Lock()
	for _, c := range t.conns {
		c.close()
	}
	t.conns = make(map[string]*conn)
	t.mu.Unlock()

	t.wg.Wait()
}

// Connect dials the specified host and starts the announce handshake.
func (t *Transport) Connect(host string) error {
	if host == t.host {
		return errors.New("refusing to connect to self")
	}

	t.mu.RLock()
	_, exists := t.conns[host]
	t.mu.RUnlock()
	if exists {
		return nil
	}

	nc, err := net.DialTimeout("tcp", host, dialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", host, err)
	}

	t.wg.Add(1)
	go t.handleConn(nc, host)

	return nil
}

// =============================================================================
// These methods push local changes to every connected peer. Enqueueing
// never blocks the caller.

// SendBlockToPeers broadcasts a freshly accepted block.
func (t *Transport) SendBlockToPeers(blockData database.BlockData) {
	msg, err := NewMessage(TypeNewBlock, blockData, t.host)
	if err != nil {
		t.evHandler("p2p: SendBlockToPeers: WARNING: %s", err)
		return
	}

	t.broadcast(msg)
}

// SendTxToPeers broadcasts a freshly admitted transaction.
func (t *Transport) SendTxToPeers(tx database.BlockTx) {
	msg, err := NewMessage(TypeNewTransaction, tx, t.host)
	if err != nil {
		t.evHandler("p2p: SendTxToPeers: WARNING: %s", err)
		return
	}

	t.broadcast(msg)
}

// RequestChains asks every connected peer for its full chain.
func (t *Transport) RequestChains() {
	msg, err := NewMessage(TypeRequestChain, nil, t.host)
	if err != nil {
		t.evHandler("p2p: RequestChains: WARNING: %s", err)
		return
	}

	t.broadcast(msg)
}

// PeerStatus returns the live connection information per peer.
func (t *Transport) PeerStatus() []peer.Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	status := make([]peer.Status, 0, len(t.conns))
	for host, c := range t.conns {
		status = append(status, peer.Status{
			Host:        host,
			ConnectedAt: c.connectedAt,
			MessagesIn:  c.msgsIn.Load(),
			MessagesOut: c.msgsOut.Load(),
		})
	}

	return status
}

// broadcast enqueues the message onto every peer's send queue.
func (t *Transport) broadcast(msg Message) {
	t.mu.RLock()
	conns := make([]*conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.RUnlock()

	for _, c := range conns {
		t.enqueue(c, msg)
	}
}

// enqueue places the message on the peer's send queue. A full queue means
// the peer stopped draining: it is treated as dead and disconnected rather
// than blocking or silently losing newer traffic.
func (t *Transport) enqueue(c *conn, msg Message) {
	select {
	case c.out <- msg:
	default:
		t.drop(c, "send queue full")
	}
}

// =============================================================================

// accept runs the listener loop, handing each inbound connection its own
// goroutine pair.
func (t *Transport) accept() {
	defer t.wg.Done()

	t.evHandler("p2p: accept: listening on %s", t.host)

	for {
		nc, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.shut:
				return
			default:
				t.evHandler("p2p: accept: WARNING: %s", err)
				continue
			}
		}

		t.wg.Add(1)
		go t.handleConn(nc, "")
	}
}

// handleConn owns one peer connection for its lifetime: it starts the
// writer, announces ourselves and runs the read loop. The host is the
// peer's listen address for outbound dials and empty for inbound peers
// until they announce.
func (t *Transport) handleConn(nc net.Conn, host string) {
	defer t.wg.Done()

	c := newConn(nc, host)

	t.wg.Add(1)
	go t.writeLoop(c)

	// Tell the peer the address we listen on so it can key us by it.
	if msg, err := NewMessage(TypePeerAnnounce, announcePayload{Host: t.host}, t.host); err == nil {
		t.enqueue(c, msg)
	}

	if host != "" {
		t.register(c, host)
	}

	t.readLoop(c)
}

// readLoop scans newline-delimited frames until the connection dies. A read
// error or malformed frame drops only this peer.
func (t *Transport) readLoop(c *conn) {
	scanner := bufio.NewScanner(c.nc)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			t.drop(c, fmt.Sprintf("malformed frame: %s", err))
			return
		}

		c.msgsIn.Add(1)
		t.route(c, msg)
	}

	reason := "connection closed"
	if err := scanner.Err(); err != nil {
		reason = err.Error()
	}
	t.drop(c, reason)
}

// writeLoop drains the peer's send queue onto the wire.
func (t *Transport) writeLoop(c *conn) {
	defer t.wg.Done()

	for {
		select {
		case msg := <-c.out:
			data, err := json.Marshal(msg)
			if err != nil {
				t.evHandler("p2p: writeLoop: WARNING: %s", err)
				continue
			}

			if _, err := c.nc.Write(append(data, '\n')); err != nil {
				t.drop(c, err.Error())
				return
			}
			c.msgsOut.Add(1)

		case <-c.done:
			return
		}
	}
}

// route dispatches one inbound frame to the state layer.
func (t *Transport) route(c *conn, msg Message) {
	from := c.peerHost()

	switch msg.Type {
	case TypePeerAnnounce:
		var ap announcePayload
		if err := json.Unmarshal(msg.Payload, &ap); err != nil || ap.Host == "" {
			t.drop(c, "bad announce payload")
			return
		}
		t.register(c, ap.Host)

	case TypeNewBlock:
		var blockData database.BlockData
		if err := json.Unmarshal(msg.Payload, &blockData); err != nil {
			t.drop(c, fmt.Sprintf("bad block payload: %s", err))
			return
		}

		err := t.handler.ProcessPeerBlock(from, blockData)
		switch {
		case err == nil:

		// The peer is two or more blocks ahead of us. Ask it for the
		// full chain instead of discarding the block outright.
		case errors.Is(err, database.ErrChainForked):
			t.evHandler("p2p: route: peer[%s]: fork detected, requesting chain", from)
			if req, err := NewMessage(TypeRequestChain, nil, t.host); err == nil {
				t.enqueue(c, req)
			}

		default:
			t.evHandler("p2p: route: peer[%s]: block rejected: %s", from, err)
		}

	case TypeNewTransaction:
		var tx database.BlockTx
		if err := json.Unmarshal(msg.Payload, &tx); err != nil {
			t.drop(c, fmt.Sprintf("bad transaction payload: %s", err))
			return
		}
		if err := t.handler.ProcessPeerTransaction(from, tx); err != nil {
			t.evHandler("p2p: route: peer[%s]: transaction rejected: %s", from, err)
		}

	case TypeRequestChain:
		blocks := t.handler.ChainBlocks()
		resp, err := NewMessage(TypeChainResponse, blocks, t.host)
		if err != nil {
			t.evHandler("p2p: route: WARNING: %s", err)
			return
		}
		t.enqueue(c, resp)

	case TypeChainResponse:
		var blocks []database.BlockData
		if err := json.Unmarshal(msg.Payload, &blocks); err != nil {
			t.drop(c, fmt.Sprintf("bad chain payload: %s", err))
			return
		}
		if err := t.handler.ProcessChainResponse(from, blocks); err != nil {
			t.evHandler("p2p: route: peer[%s]: chain response: %s", from, err)
		}

	default:
		t.evHandler("p2p: route: peer[%s]: unknown message type %q", from, msg.Type)
	}
}

// =============================================================================

// register keys the connection by the peer's listen address. A duplicate
// connection to an already registered peer is closed in favor of the
// existing one.
func (t *Transport) register(c *conn, host string) {
	c.setHost(host)

	t.mu.Lock()
	existing, exists := t.conns[host]
	if exists && existing != c {
		t.mu.Unlock()
		t.evHandler("p2p: register: duplicate connection to %s, closing", host)
		c.close()
		return
	}
	t.conns[host] = c
	t.mu.Unlock()

	if exists {
		return
	}

	t.knownPeers.Add(peer.New(host))

	t.evHandler("p2p: register: peer connected: %s", host)
	if t.evts != nil {
		t.evts.Send(events.Event{
			Kind:    events.KindPeerConnected,
			Message: "peer connected",
			Data:    map[string]any{"host": host},
		})
	}
}

// drop closes the connection and removes it from the registry. Safe to call
// more than once.
func (t *Transport) drop(c *conn, reason string) {
	if !c.close() {
		return
	}

	host := c.peerHost()

	t.mu.Lock()
	if existing, exists := t.conns[host]; exists && existing == c {
		delete(t.conns, host)
	}
	t.mu.Unlock()

	t.evHandler("p2p: drop: peer disconnected: %s: %s", host, reason)
	if t.evts != nil {
		t.evts.Send(events.Event{
			Kind:    events.KindPeerDisconnected,
			Message: "peer disconnected",
			Data:    map[string]any{"host": host, "reason": reason},
		})
	}
}
