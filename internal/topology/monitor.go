package topology

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dreamware/replwatch/internal/cluster"
	"github.com/dreamware/replwatch/internal/routing"
)

// CycleOutcome summarises one scan cycle.
type CycleOutcome string

const (
	// AllFailed means no node could be probed.
	AllFailed CycleOutcome = "all_failed"
	// MasterChanged means a promotion was applied.
	MasterChanged CycleOutcome = "master_changed"
	// PromotionFailed means a promotion was attempted and rolled back.
	PromotionFailed CycleOutcome = "promotion_failed"
	// SlavesChanged means at least one slave came back into rotation.
	SlavesChanged CycleOutcome = "slaves_changed"
	// MasterConfirmed means the known master still reports MASTER.
	MasterConfirmed CycleOutcome = "master_confirmed"
	// NoMaster means some probes succeeded but none confirmed a master.
	NoMaster CycleOutcome = "no_master"
)

// CycleReport is the aggregated result of one scan cycle.
type CycleReport struct {
	Started   time.Time             `json:"started"`
	Snapshot  cluster.NodeAddress   `json:"snapshot"`
	NewMaster cluster.NodeAddress   `json:"new_master"`
	Outcome   CycleOutcome          `json:"outcome"`
	Promotion PromotionResult       `json:"promotion,omitempty"`
	SlavesUp  []cluster.NodeAddress `json:"slaves_up,omitempty"`
	Duration  time.Duration         `json:"duration"`
	Probed    int                   `json:"probed"`
	Failed    int                   `json:"failed"`
	Confirmed bool                  `json:"confirmed"`
}

// nodeResult is one probe's slot in a cycle.
type nodeResult struct {
	outcome   cluster.ProbeOutcome
	promotion PromotionResult
	skipped   bool
	confirmed bool
	slaveUp   bool
}

// scan runs one cycle: every configured node is probed in its own goroutine,
// each result is applied as it arrives, and the cycle ends once all probes
// have reported.
func (m *Manager) scan(ctx context.Context) CycleReport {
	report := CycleReport{Started: time.Now(), Probed: len(m.nodes)}

	master := m.master.Load()
	report.Snapshot = master
	m.log.Debug("current master", "addr", master)

	results := make([]nodeResult, len(m.nodes))
	var wg sync.WaitGroup
	for i, addr := range m.nodes {
		wg.Add(1)
		go func(i int, addr cluster.NodeAddress) {
			defer wg.Done()
			results[i] = m.checkNode(ctx, master, addr)
		}(i, addr)
	}
	wg.Wait()

	for _, r := range results {
		switch {
		case !r.outcome.OK():
			report.Failed++
		case r.confirmed:
			report.Confirmed = true
		case r.promotion != "":
			if r.promotion == Promoted || report.Promotion == "" || report.Promotion == Superseded {
				report.Promotion = r.promotion
			}
			if r.promotion == Promoted {
				report.NewMaster = r.outcome.Addr
			}
		case r.slaveUp:
			report.SlavesUp = append(report.SlavesUp, r.outcome.Addr)
		}
	}
	report.Outcome = classifyCycle(report)
	report.Duration = time.Since(report.Started)
	return report
}

func classifyCycle(r CycleReport) CycleOutcome {
	switch {
	case r.Probed > 0 && r.Failed == r.Probed:
		return AllFailed
	case r.Promotion == Promoted:
		return MasterChanged
	case r.Promotion == RolledBack:
		return PromotionFailed
	case len(r.SlavesUp) > 0:
		return SlavesChanged
	case r.Confirmed:
		return MasterConfirmed
	default:
		return NoMaster
	}
}

// checkNode probes addr and applies what it reports against the master
// snapshot taken at the start of the cycle.
func (m *Manager) checkNode(ctx context.Context, master, addr cluster.NodeAddress) nodeResult {
	out := probeNode(ctx, m.conns, addr)
	res := nodeResult{outcome: out}

	if err := out.Err; err != nil {
		var pe *ProbeError
		if m.shuttingDown.Load() || errors.Is(err, context.Canceled) {
			res.skipped = true
			return res
		}
		if errors.As(err, &pe) && pe.Stage == StageQuery {
			m.log.Error("unable to query node role", "addr", addr, "err", err)
		} else {
			m.log.Error("node unreachable", "addr", addr, "err", err)
		}
		return res
	}

	if m.shuttingDown.Load() {
		res.skipped = true
		return res
	}

	switch out.Role {
	case cluster.RoleMaster:
		if out.Addr == master {
			m.log.Debug("master unchanged", "addr", master)
			res.confirmed = true
			return res
		}
		res.promotion = m.failover.TryPromote(ctx, master, out.Addr)
	case cluster.RoleSlave:
		if m.skipSlavesInit {
			return res
		}
		if m.slaves.SlaveUp(m.slotStart, out.Addr, routing.FreezeManager) {
			m.log.Info("slave is up", "addr", out.Addr)
			res.slaveUp = true
		}
	}
	return res
}

// runCycle is the scheduler tick: scan, publish the report, re-arm.
func (m *Manager) runCycle() {
	if m.shuttingDown.Load() {
		return
	}

	report := m.scan(m.ctx)
	m.lastCycle.Store(&report)
	if m.trace.CycleDone != nil {
		m.trace.CycleDone(report)
	}

	m.scheduleCheck()
}

// scheduleCheck arms the next cycle one scan interval from now. A refused
// tick ends monitoring and is logged as an error.
func (m *Manager) scheduleCheck() {
	if m.shuttingDown.Load() {
		return
	}
	if m.scheduler.Arm(m.interval, m.runCycle) == nil && !m.shuttingDown.Load() {
		m.log.Error("unable to schedule topology scan, monitoring stopped",
			"interval", m.interval, "scheduler_stopped", m.scheduler.Stopped())
	}
}
