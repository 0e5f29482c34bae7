package topology

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dreamware/replwatch/internal/cluster"
	"github.com/dreamware/replwatch/internal/routing"
)

var (
	errRefused = errors.New("connection refused")
	errTimeout = errors.New("i/o timeout")
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeNode is the scripted behaviour of one address.
type fakeNode struct {
	connectErr error
	queryErr   error
	role       string
	block      bool
}

type fakeConn struct {
	c    *fakeConnector
	addr cluster.NodeAddress
}

func (fc *fakeConn) ReplicationInfo(ctx context.Context) (map[string]string, error) {
	node := fc.c.node(fc.addr)
	if node.block {
		// answer only after cancellation, like a reply racing shutdown
		<-ctx.Done()
		return map[string]string{RoleKey: node.role}, nil
	}
	if node.queryErr != nil {
		return nil, node.queryErr
	}
	return map[string]string{RoleKey: node.role}, nil
}

func (fc *fakeConn) PeerAddress() cluster.NodeAddress {
	return fc.addr
}

// fakeConnector serves scripted nodes.
type fakeConnector struct {
	nodes    map[cluster.NodeAddress]fakeNode
	connects map[cluster.NodeAddress]int
	released []cluster.NodeAddress
	mu       sync.Mutex
	closed   bool
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{
		nodes:    make(map[cluster.NodeAddress]fakeNode),
		connects: make(map[cluster.NodeAddress]int),
	}
}

func (c *fakeConnector) set(addr cluster.NodeAddress, n fakeNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[addr] = n
}

func (c *fakeConnector) node(addr cluster.NodeAddress) fakeNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[addr]
}

func (c *fakeConnector) Connect(ctx context.Context, addr cluster.NodeAddress) (NodeConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("connector closed")
	}
	c.connects[addr]++
	n, ok := c.nodes[addr]
	if !ok {
		return nil, errRefused
	}
	if n.connectErr != nil {
		return nil, n.connectErr
	}
	return &fakeConn{c: c, addr: addr}, nil
}

func (c *fakeConnector) Release(addr cluster.NodeAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = append(c.released, addr)
}

func (c *fakeConnector) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConnector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnector) releasedAddrs() []cluster.NodeAddress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]cluster.NodeAddress(nil), c.released...)
}

func (c *fakeConnector) connectCount(addr cluster.NodeAddress) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects[addr]
}

// fakeRouting records routing calls and tracks slave state.
type fakeRouting struct {
	rebindErr error
	master    cluster.NodeAddress
	slaves    map[cluster.NodeAddress]bool
	rebinds   []cluster.NodeAddress
	inits     int
	mu        sync.Mutex
}

func newFakeRouting() *fakeRouting {
	return &fakeRouting{slaves: make(map[cluster.NodeAddress]bool)}
}

func (r *fakeRouting) InitEntry(_ routing.SlotRange, master cluster.NodeAddress, slaves []cluster.NodeAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inits++
	r.master = master
	for _, s := range slaves {
		r.slaves[s] = true
	}
	return nil
}

func (r *fakeRouting) RebindMaster(_ context.Context, _ int, addr cluster.NodeAddress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebinds = append(r.rebinds, addr)
	if r.rebindErr != nil {
		return r.rebindErr
	}
	r.master = addr
	return nil
}

func (r *fakeRouting) SlaveUp(_ int, addr cluster.NodeAddress, _ routing.FreezeReason) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slaves[addr] {
		return false
	}
	r.slaves[addr] = true
	return true
}

func (r *fakeRouting) freeze(addr cluster.NodeAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slaves[addr] = false
}

func (r *fakeRouting) setRebindErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rebindErr = err
}

func (r *fakeRouting) rebindCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rebinds)
}

func (r *fakeRouting) currentMaster() cluster.NodeAddress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.master
}

// manualTimer records armed ticks; tests fire them by hand.
type manualTimer struct {
	armed []*manualTick
	mu    sync.Mutex
}

type manualTick struct {
	f       func()
	delay   time.Duration
	stopped bool
}

func (t *manualTick) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (m *manualTimer) timer(d time.Duration, f func()) Stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	tick := &manualTick{delay: d, f: f}
	m.armed = append(m.armed, tick)
	return tick
}

func (m *manualTimer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.armed)
}

func (m *manualTimer) last() *manualTick {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.armed) == 0 {
		return nil
	}
	return m.armed[len(m.armed)-1]
}

// fireLast runs the most recently armed tick on the calling goroutine.
func (m *manualTimer) fireLast() {
	if t := m.last(); t != nil {
		t.f()
	}
}
