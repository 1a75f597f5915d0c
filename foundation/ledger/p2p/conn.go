package p2p

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// conn is one live peer connection: the socket, its bounded send queue and
// the peer's announced listen address once known.
type conn struct {
	nc          net.Conn
	out         chan Message
	done        chan struct{}
	connectedAt time.Time

	msgsIn  atomic.Uint64
	msgsOut atomic.Uint64

	mu     sync.Mutex
	host   string
	closed bool
}

// newConn wraps a socket. The host is empty for inbound peers until they
// announce their listen address.
func newConn(nc net.Conn, host string) *conn {
	return &conn{
		nc:          nc,
		out:         make(chan Message, sendQueueSize),
		done:        make(chan struct{}),
		connectedAt: time.Now().UTC(),
		host:        host,
	}
}

// peerHost returns the peer's listen address, falling back to the socket's
// remote address before the announce arrives.
func (c *conn) peerHost() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.host != "" {
		return c.host
	}

	return c.nc.RemoteAddr().String()
}

// setHost records the announced listen address.
func (c *conn) setHost(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.host = host
}

// close tears the connection down. It reports whether this call was the one
// that closed it.
func (c *conn) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true

	close(c.done)
	c.nc.Close()

	return true
}
