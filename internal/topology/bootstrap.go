package topology

import (
	"context"
	"fmt"
	"sync"

	"github.com/dreamware/replwatch/internal/cluster"
	"github.com/dreamware/replwatch/internal/config"
	"github.com/dreamware/replwatch/internal/routing"
)

// probeAll probes every node concurrently and returns the outcomes in node
// order.
func probeAll(ctx context.Context, conns Connector, nodes []cluster.NodeAddress) []cluster.ProbeOutcome {
	outcomes := make([]cluster.ProbeOutcome, len(nodes))
	var wg sync.WaitGroup
	for i, addr := range nodes {
		wg.Add(1)
		go func(i int, addr cluster.NodeAddress) {
			defer wg.Done()
			outcomes[i] = probeNode(ctx, conns, addr)
		}(i, addr)
	}
	wg.Wait()
	return outcomes
}

// bootstrap discovers the initial master and slaves and primes the routing
// table. On error nothing is left armed or connected.
func (m *Manager) bootstrap(ctx context.Context) error {
	var (
		master cluster.NodeAddress
		slaves []cluster.NodeAddress
	)

	for _, out := range probeAll(ctx, m.conns, m.nodes) {
		if out.Err != nil {
			m.log.Error("node unreachable", "addr", out.Addr, "err", out.Err)
			continue
		}
		switch out.Role {
		case cluster.RoleMaster:
			if !master.IsZero() {
				m.log.Warn("more than one node reports master, ignoring", "addr", out.Addr, "master", master)
				continue
			}
			master = out.Addr
			m.log.Info("node is the master", "addr", out.Addr)
		case cluster.RoleSlave:
			slaves = append(slaves, out.Addr)
			m.log.Info("node is a slave", "addr", out.Addr)
		}
	}

	if master.IsZero() {
		m.release()
		return fmt.Errorf("bootstrap over %d nodes: %w", len(m.nodes), ErrNoMasterFound)
	}

	if m.readMode != config.ReadModeMaster && len(slaves) == 0 {
		m.log.Warn("no slave nodes found, reads will go to the master", "read_mode", m.readMode)
	}

	if err := m.routing.InitEntry(routing.SingleSlotRange, master, slaves); err != nil {
		m.release()
		return fmt.Errorf("init routing entry: %w", err)
	}

	m.master = NewMasterHolder(master)
	return nil
}
