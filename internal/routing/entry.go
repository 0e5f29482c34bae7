package routing

import (
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/replwatch/internal/cluster"
)

// FreezeReason records who took a slave out of read rotation.
type FreezeReason string

const (
	// FreezeManager is used by the topology monitor.
	FreezeManager FreezeReason = "manager"
	// FreezeReconnect is used when the transport lost the node.
	FreezeReconnect FreezeReason = "reconnect"
	// FreezeSystem is used for operator-initiated freezes.
	FreezeSystem FreezeReason = "system"
)

// lifts reports whether a bring-up tagged r may undo a freeze tagged frozen.
// Operator freezes are only lifted by the operator.
func (r FreezeReason) lifts(frozen FreezeReason) bool {
	if r == frozen {
		return true
	}
	return r == FreezeManager && frozen == FreezeReconnect
}

// SlaveState describes one replica of an entry.
type SlaveState struct {
	Addr   cluster.NodeAddress `json:"addr"`
	Reason FreezeReason        `json:"freeze_reason,omitempty"`
	Frozen bool                `json:"frozen"`
}

// Entry is the master and replica set serving one slot range.
type Entry struct {
	slaves map[cluster.NodeAddress]*SlaveState
	master cluster.NodeAddress
	Range  SlotRange
	mu     sync.RWMutex
}

func newEntry(rng SlotRange, master cluster.NodeAddress, slaves []cluster.NodeAddress) *Entry {
	e := &Entry{
		Range:  rng,
		master: master,
		slaves: make(map[cluster.NodeAddress]*SlaveState, len(slaves)),
	}
	for _, addr := range slaves {
		if addr == master {
			continue
		}
		e.slaves[addr] = &SlaveState{Addr: addr}
	}
	return e
}

// Master returns the current master of the entry.
func (e *Entry) Master() cluster.NodeAddress {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.master
}

func (e *Entry) setMaster(addr cluster.NodeAddress) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.master = addr
	if s, ok := e.slaves[addr]; ok && !s.Frozen {
		s.Frozen = true
		s.Reason = FreezeManager
	}
}

// HasSlave reports whether addr is a known replica of the entry.
func (e *Entry) HasSlave(addr cluster.NodeAddress) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.slaves[addr]
	return ok
}

// SlaveUp brings addr into read rotation. An unknown address is added as a
// newly discovered replica. A frozen replica is only unfrozen when reason may
// lift its freeze. Returns true when state changed.
func (e *Entry) SlaveUp(addr cluster.NodeAddress, reason FreezeReason) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.slaves[addr]
	if !ok {
		e.slaves[addr] = &SlaveState{Addr: addr}
		return true
	}
	if !s.Frozen || !reason.lifts(s.Reason) {
		return false
	}
	s.Frozen = false
	s.Reason = ""
	return true
}

// SlaveDown freezes addr with reason. An operator freeze overrides an
// automatic one so the monitor cannot bring the node back. Returns true when
// state changed.
func (e *Entry) SlaveDown(addr cluster.NodeAddress, reason FreezeReason) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.slaves[addr]
	if !ok {
		return false
	}
	if !s.Frozen {
		s.Frozen = true
		s.Reason = reason
		return true
	}
	if reason == FreezeSystem && s.Reason != FreezeSystem {
		s.Reason = FreezeSystem
		return true
	}
	return false
}

// Slaves returns copies of every replica, sorted by address.
func (e *Entry) Slaves() []SlaveState {
	e.mu.RLock()
	out := make([]SlaveState, 0, len(e.slaves))
	for _, s := range e.slaves {
		out = append(out, *s)
	}
	e.mu.RUnlock()

	slices.SortFunc(out, func(a, b SlaveState) int {
		return strings.Compare(a.Addr.String(), b.Addr.String())
	})
	return out
}

// UpSlaves returns the addresses currently in read rotation, sorted.
func (e *Entry) UpSlaves() []cluster.NodeAddress {
	var out []cluster.NodeAddress
	for _, s := range e.Slaves() {
		if !s.Frozen {
			out = append(out, s.Addr)
		}
	}
	return out
}
