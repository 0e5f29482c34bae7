package transport

import (
	"context"
	"sync"

	"github.com/dreamware/replwatch/internal/cluster"
)

// DialFunc opens a new connection. Pool uses Dial unless told otherwise.
type DialFunc func(ctx context.Context, addr cluster.NodeAddress, opts Options) (*Conn, error)

// Pool keeps at most one connection per node address and hands it out again
// on the next Connect, so periodic probes do not reconnect every time.
// Thread-safe.
type Pool struct {
	conns  map[cluster.NodeAddress]*Conn
	dial   DialFunc
	opts   Options
	mu     sync.Mutex
	closed bool
}

// NewPool returns an empty pool dialing with opts.
func NewPool(opts Options) *Pool {
	return &Pool{
		conns: make(map[cluster.NodeAddress]*Conn),
		dial:  Dial,
		opts:  opts,
	}
}

// SetDialFunc overrides how new connections are opened.
func (p *Pool) SetDialFunc(dial DialFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dial = dial
}

// Connect returns the cached connection for addr when it is still open,
// otherwise dials a new one. The dial happens without holding the pool lock.
func (p *Pool) Connect(ctx context.Context, addr cluster.NodeAddress) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	if c, ok := p.conns[addr]; ok && !c.Closed() {
		p.mu.Unlock()
		return c, nil
	}
	dial := p.dial
	p.mu.Unlock()

	c, err := dial(ctx, addr, p.opts)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		c.Close()
		return nil, ErrClosed
	}
	if existing, ok := p.conns[addr]; ok && existing != c && !existing.Closed() {
		// Lost a race with another Connect for the same node.
		c.Close()
		return existing, nil
	}
	p.conns[addr] = c
	return c, nil
}

// Release closes and forgets the connection for addr, if any.
func (p *Pool) Release(addr cluster.NodeAddress) {
	p.mu.Lock()
	c := p.conns[addr]
	delete(p.conns, addr)
	p.mu.Unlock()

	if c != nil {
		c.Close()
	}
}

// Ping connects to addr (reusing a cached connection) and sends PING.
// A failed ping releases the connection.
func (p *Pool) Ping(ctx context.Context, addr cluster.NodeAddress) error {
	c, err := p.Connect(ctx, addr)
	if err != nil {
		return err
	}
	if err := c.Ping(ctx); err != nil {
		p.Release(addr)
		return err
	}
	return nil
}

// Len returns the number of cached connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// CloseAll closes every cached connection. The pool refuses new connections
// afterwards.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[cluster.NodeAddress]*Conn)
	p.closed = true
	p.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
