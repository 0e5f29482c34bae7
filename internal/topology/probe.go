package topology

import (
	"context"

	"github.com/dreamware/replwatch/internal/cluster"
	"github.com/dreamware/replwatch/internal/routing"
	"github.com/dreamware/replwatch/internal/transport"
)

// NodeConn is an open connection to one node.
type NodeConn interface {
	// ReplicationInfo returns the node's raw replication report.
	ReplicationInfo(ctx context.Context) (map[string]string, error)
	// PeerAddress returns the address the connection was opened for.
	PeerAddress() cluster.NodeAddress
}

// Connector opens (or reuses) node connections.
type Connector interface {
	Connect(ctx context.Context, addr cluster.NodeAddress) (NodeConn, error)
	// Release closes and forgets the connection to addr.
	Release(addr cluster.NodeAddress)
	// CloseAll closes every connection and refuses new ones.
	CloseAll()
}

// RoutingTable is told to rebind the master of a slot range on failover and
// is primed once at bootstrap.
type RoutingTable interface {
	InitEntry(rng routing.SlotRange, master cluster.NodeAddress, slaves []cluster.NodeAddress) error
	RebindMaster(ctx context.Context, slotStart int, addr cluster.NodeAddress) error
}

// SlaveRegistry brings replicas into read rotation.
type SlaveRegistry interface {
	// SlaveUp returns true only when the slave's state changed.
	SlaveUp(slotStart int, addr cluster.NodeAddress, reason routing.FreezeReason) bool
}

// PoolConnector adapts a transport.Pool to Connector.
type PoolConnector struct {
	pool *transport.Pool
}

// NewPoolConnector wraps pool.
func NewPoolConnector(pool *transport.Pool) *PoolConnector {
	return &PoolConnector{pool: pool}
}

// Connect returns the pooled connection for addr.
func (c *PoolConnector) Connect(ctx context.Context, addr cluster.NodeAddress) (NodeConn, error) {
	conn, err := c.pool.Connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Release closes the pooled connection for addr.
func (c *PoolConnector) Release(addr cluster.NodeAddress) {
	c.pool.Release(addr)
}

// CloseAll closes the pool.
func (c *PoolConnector) CloseAll() {
	c.pool.CloseAll()
}

// probeNode connects to addr and classifies its role. Connections whose role
// query fails are released so the next cycle reconnects.
func probeNode(ctx context.Context, conns Connector, addr cluster.NodeAddress) cluster.ProbeOutcome {
	conn, err := conns.Connect(ctx, addr)
	if err != nil {
		return cluster.ProbeOutcome{Addr: addr, Err: &ProbeError{Addr: addr, Stage: StageConnect, Err: err}}
	}

	info, err := conn.ReplicationInfo(ctx)
	if err == nil {
		var role cluster.Role
		role, err = ClassifyRole(info)
		if err == nil {
			return cluster.ProbeOutcome{Addr: conn.PeerAddress(), Role: role}
		}
	}

	conns.Release(addr)
	return cluster.ProbeOutcome{Addr: addr, Err: &ProbeError{Addr: addr, Stage: StageQuery, Err: err}}
}
