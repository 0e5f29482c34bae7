package topology

import (
	"sync/atomic"

	"github.com/dreamware/replwatch/internal/cluster"
)

// MasterHolder owns the current master address. Readers always see a whole
// value; writers can only replace it through CompareAndSwap.
type MasterHolder struct {
	v atomic.Value // cluster.NodeAddress
}

// NewMasterHolder returns a holder initialised to addr.
func NewMasterHolder(addr cluster.NodeAddress) *MasterHolder {
	h := &MasterHolder{}
	h.v.Store(addr)
	return h
}

// Load returns the current master. The zero address means none is set.
func (h *MasterHolder) Load() cluster.NodeAddress {
	addr, _ := h.v.Load().(cluster.NodeAddress)
	return addr
}

// CompareAndSwap replaces the master with next only if it still equals old.
func (h *MasterHolder) CompareAndSwap(old, next cluster.NodeAddress) bool {
	return h.v.CompareAndSwap(old, next)
}
