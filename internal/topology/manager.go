package topology

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/replwatch/internal/cluster"
	"github.com/dreamware/replwatch/internal/config"
	"github.com/dreamware/replwatch/internal/routing"
)

// DefaultScanInterval is used when Options.ScanInterval is not set.
const DefaultScanInterval = time.Second

// Trace holds optional callbacks fired by the manager. They run on the scan
// goroutines and must not block.
type Trace struct {
	// CycleDone is called after every completed scan cycle.
	CycleDone func(CycleReport)
	// MasterChanged is called after a promotion has been applied to both the
	// master holder and the routing table.
	MasterChanged func(old, next cluster.NodeAddress)
}

// Options configures a Manager.
type Options struct {
	// Connector opens node connections. Required.
	Connector Connector
	// Routing is rebound on failover. Required.
	Routing RoutingTable
	// Slaves receives slave bring-ups. Defaults to Routing when it also
	// implements SlaveRegistry.
	Slaves SlaveRegistry
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Scheduler defaults to one backed by time.AfterFunc.
	Scheduler *Scheduler
	Trace     Trace
	ReadMode  config.ReadMode
	// Nodes are probed in this order; bootstrap picks the first master.
	Nodes          []cluster.NodeAddress
	ScanInterval   time.Duration
	SkipSlavesInit bool
}

// OptionsFromConfig fills the configuration-derived part of Options.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	nodes, err := cfg.Nodes()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Nodes:          nodes,
		ScanInterval:   cfg.ScanIntervalDuration(),
		ReadMode:       cfg.ReadMode,
		SkipSlavesInit: cfg.SkipSlavesInit(),
	}, nil
}

// Manager watches a replicated group and keeps the routing table pointed at
// its current master.
//
// Thread-safe: All exported methods are safe for concurrent access.
type Manager struct {
	// ctx is the monitoring context; cancelled by Shutdown so in-flight
	// probes return early.
	ctx context.Context
	// conns opens and caches node connections.
	conns Connector
	// routing is primed at bootstrap and rebound on failover.
	routing RoutingTable
	// slaves receives slave bring-ups from the scan cycle.
	slaves SlaveRegistry
	// master is the single source of truth for the current master.
	master *MasterHolder
	// failover applies master transitions against master and routing.
	failover *FailoverCoordinator
	// scheduler holds at most one pending scan tick.
	scheduler *Scheduler
	log       *slog.Logger
	// lastCycle is the report of the most recent completed cycle, nil before
	// the first one.
	lastCycle atomic.Pointer[CycleReport]
	cancel    context.CancelFunc
	trace     Trace
	readMode  config.ReadMode
	// nodes are the configured addresses, probed in this order.
	nodes     []cluster.NodeAddress
	interval  time.Duration
	slotStart int
	id        uuid.UUID

	// skipSlavesInit disables slave bring-up (reads and subscriptions both
	// go to the master).
	skipSlavesInit bool
	// shuttingDown flips once, in Shutdown; every late result checks it.
	shuttingDown atomic.Bool
}

// NewManager probes the configured nodes, primes the routing table with the
// master and slaves found, and starts periodic monitoring.
//
// Bootstrap probes every node in parallel and folds the results in
// configuration order: the first master wins, slaves are collected, and
// unreachable nodes are logged and skipped. When no master is found, every
// connection is closed and the scheduler is stopped before returning.
//
// Parameters:
//   - ctx: Bounds the initial probe only; monitoring runs until Shutdown
//   - opts: Nodes, Connector and Routing are required; the rest have defaults
//
// Returns:
//   - *Manager: Running manager with the first scan armed one interval out
//   - error: config.ErrNoNodes, a missing collaborator, or an error
//     wrapping ErrNoMasterFound
//
// Example:
//
//	pool := transport.NewPool(cfg.TransportOptions())
//	table := routing.NewTable(pool.Ping)
//	opts, _ := OptionsFromConfig(cfg)
//	opts.Connector = NewPoolConnector(pool)
//	opts.Routing = table
//	mgr, err := NewManager(ctx, opts)
//	if err != nil {
//	    return err
//	}
//	defer mgr.Shutdown()
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	if len(opts.Nodes) == 0 {
		return nil, config.ErrNoNodes
	}
	if opts.Connector == nil {
		return nil, errors.New("topology: connector is required")
	}
	if opts.Routing == nil {
		return nil, errors.New("topology: routing table is required")
	}
	slaves := opts.Slaves
	if slaves == nil {
		reg, ok := opts.Routing.(SlaveRegistry)
		if !ok {
			return nil, errors.New("topology: slave registry is required")
		}
		slaves = reg
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = NewScheduler()
	}
	interval := opts.ScanInterval
	if interval <= 0 {
		interval = DefaultScanInterval
	}

	id := uuid.New()
	m := &Manager{
		id:             id,
		conns:          opts.Connector,
		routing:        opts.Routing,
		slaves:         slaves,
		scheduler:      sched,
		log:            logger.With("manager", id.String()),
		trace:          opts.Trace,
		readMode:       opts.ReadMode,
		nodes:          append([]cluster.NodeAddress(nil), opts.Nodes...),
		interval:       interval,
		slotStart:      routing.SingleSlotRange.Start,
		skipSlavesInit: opts.SkipSlavesInit,
	}
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := m.bootstrap(ctx); err != nil {
		return nil, err
	}

	m.failover = NewFailoverCoordinator(m.master, m.routing, m.slotStart, m.log)
	m.failover.HaltWhen(m.shuttingDown.Load)
	if m.trace.MasterChanged != nil {
		m.failover.OnChange(m.trace.MasterChanged)
	}

	m.scheduleCheck()
	return m, nil
}

// ID returns the manager's identity.
func (m *Manager) ID() uuid.UUID {
	return m.id
}

// CurrentMaster returns the master as last observed.
func (m *Manager) CurrentMaster() cluster.NodeAddress {
	return m.master.Load()
}

// LastCycle returns the report of the most recent scan cycle, or false if
// none has completed yet.
func (m *Manager) LastCycle() (CycleReport, bool) {
	r := m.lastCycle.Load()
	if r == nil {
		return CycleReport{}, false
	}
	return *r, true
}

// SkipSlavesInit reports whether slave bring-up is disabled.
func (m *Manager) SkipSlavesInit() bool {
	return m.skipSlavesInit
}

// ScanInterval returns the delay between cycles.
func (m *Manager) ScanInterval() time.Duration {
	return m.interval
}

// Shutdown stops monitoring and closes every node connection. In-flight
// probes are cancelled and their results ignored. Calling it more than once
// is harmless. It must not be called from a Trace callback.
//
// A promotion already past its shutdown check when Shutdown starts may still
// swap the master; its rebind then runs on the cancelled context, fails and
// swaps back, and Shutdown returns only after that cycle has finished.
func (m *Manager) Shutdown() {
	if !m.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	m.log.Info("shutting down")
	m.release()
}

func (m *Manager) release() {
	m.cancel()
	m.scheduler.Stop()
	m.conns.CloseAll()
}
