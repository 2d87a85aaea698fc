// Package pool implements the per-server pool of persistent TCP connections
// the dispatcher leases flows onto and the listener releases or retires as
// each flow's response completes or its connection dies.
package pool

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// Endpoint identifies one backend server.
type Endpoint struct {
	Addr string
	Port int
}

func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.Addr, e.Port) }

// Dialer opens one transport connection to ep. Injected so tests can
// substitute net.Pipe for a real socket.
type Dialer func(ctx context.Context, ep Endpoint) (net.Conn, error)

// DialTCP is the production Dialer: a plain net.Dialer TCP connect.
func DialTCP(ctx context.Context, ep Endpoint) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", ep.String())
}

// Conn is one leased-or-available node in a Pool. connected is read
// lock-free by the dispatcher's end-of-run terminator scan; busy is mutated
// only under the owning Pool's mutex.
type Conn struct {
	net       net.Conn
	connected atomic.Bool
	busy      bool
	owner     *Pool
}

func (c *Conn) NetConn() net.Conn  { return c.net }
func (c *Conn) Connected() bool    { return c.connected.Load() }
func (c *Conn) Endpoint() Endpoint { return c.owner.Endpoint }

// Release returns a leased connection to the available set after its flow
// completes normally.
func (c *Conn) Release() {
	p := c.owner
	p.mu.Lock()
	if c.busy {
		c.busy = false
		p.availableLen++
	}
	p.flowFinished++
	p.mu.Unlock()
}

// Retire marks a connection permanently unusable (read/write error, peer
// close) and closes its socket. A retired connection is never leased again
// and does not count toward availableLen.
func (c *Conn) Retire() {
	p := c.owner
	p.mu.Lock()
	wasAvailable := c.connected.Load() && !c.busy
	c.connected.Store(false)
	c.busy = false
	if wasAvailable {
		p.availableLen--
	}
	p.mu.Unlock()
	c.net.Close()
}

// Pool is the ConnectionList for one backend server: a slice of nodes
// behind one mutex guarding busy, availableLen and flowFinished, mirroring
// spec.md §9's note that a contiguous Go slice is the idiomatic replacement
// for the original singly-linked list as long as lease order is preserved.
type Pool struct {
	Endpoint Endpoint

	mu           sync.Mutex
	nodes        []*Conn
	len          int
	availableLen int
	flowFinished int
}

// New returns an empty pool for ep. Connections are added with Insert.
func New(ep Endpoint) *Pool {
	return &Pool{Endpoint: ep}
}

// Insert dials n new connections to the pool's endpoint and appends them.
// On a mid-batch dial failure, every connection already dialed in this call
// is closed and discarded; the pool's counters are left untouched (an
// Insert either fully succeeds or has no effect).
func (p *Pool) Insert(ctx context.Context, n int, dial Dialer) ([]*Conn, error) {
	if n <= 0 {
		return nil, nil
	}
	created := make([]*Conn, 0, n)
	for i := 0; i < n; i++ {
		nc, err := dial(ctx, p.Endpoint)
		if err != nil {
			for _, c := range created {
				c.net.Close()
			}
			return nil, fmt.Errorf("pool: dial connection %d/%d to %s: %w", i+1, n, p.Endpoint, err)
		}
		c := &Conn{net: nc, owner: p}
		c.connected.Store(true)
		created = append(created, c)
	}

	p.mu.Lock()
	p.nodes = append(p.nodes, created...)
	p.len += len(created)
	p.availableLen += len(created)
	p.mu.Unlock()
	return created, nil
}

// Lease returns the first n available (connected, not busy) nodes in
// insertion order and marks them busy, or an error if fewer than n are
// available. Lease never partially succeeds: on a shortfall every node it
// would have leased is left untouched.
func (p *Pool) Lease(n int) ([]*Conn, error) {
	if n <= 0 {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	leased := make([]*Conn, 0, n)
	for _, c := range p.nodes {
		if len(leased) == n {
			break
		}
		if c.connected.Load() && !c.busy {
			leased = append(leased, c)
		}
	}
	if len(leased) < n {
		return nil, fmt.Errorf("pool: lease %d connections to %s: only %d available", n, p.Endpoint, len(leased))
	}
	for _, c := range leased {
		c.busy = true
	}
	p.availableLen -= n
	return leased, nil
}

// Clear closes every node, connected or not, and drops them from the pool.
// Used at shutdown after the terminator flow has been sent.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.nodes {
		c.net.Close()
	}
	p.nodes = nil
	p.len = 0
	p.availableLen = 0
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.len
}

func (p *Pool) AvailableLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableLen
}

func (p *Pool) FlowFinished() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flowFinished
}

// Nodes returns a snapshot of every node currently in the pool, connected
// or not. The dispatcher uses this at shutdown to send a terminator flow on
// every still-connected socket; callers must not mutate the returned slice's Conns outside the
// pool's own Release/Retire.
func (p *Pool) Nodes() []*Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Conn, len(p.nodes))
	copy(out, p.nodes)
	return out
}
