package topology

import (
	"context"
	"log/slog"

	"github.com/dreamware/replwatch/internal/cluster"
)

// PromotionResult is what happened to one promotion attempt.
type PromotionResult string

const (
	// Promoted means the swap and the rebind both succeeded.
	Promoted PromotionResult = "promoted"
	// Superseded means another report already moved the master; nothing was done.
	Superseded PromotionResult = "superseded"
	// RolledBack means the rebind failed and the master was swapped back
	// (or had already moved on).
	RolledBack PromotionResult = "rolled_back"
	// Aborted means the coordinator was halted before the swap; nothing was done.
	Aborted PromotionResult = "aborted"
)

// FailoverCoordinator applies master transitions: a compare-and-swap on the
// holder, then the routing rebind, with a compensating swap if the rebind
// fails.
//
// Thread-safe: TryPromote may be called from many probe goroutines at once.
// OnChange and HaltWhen must be called before the first TryPromote.
type FailoverCoordinator struct {
	// master is the shared holder; the only writer is TryPromote.
	master *MasterHolder
	// routing is rebound after a successful swap.
	routing RoutingTable
	log     *slog.Logger
	// onChange runs after each durable promotion. Optional.
	onChange func(old, next cluster.NodeAddress)
	// halted reports whether promotions must stop. Optional.
	halted func() bool
	// slotStart identifies the routing entry being rebound.
	slotStart int
}

// NewFailoverCoordinator wires a coordinator for one routing entry.
//
// Parameters:
//   - master: The holder owning the current master address
//   - routing: The table to rebind when the master moves
//   - slotStart: First slot of the entry to rebind (0 for a replicated group)
//   - logger: Destination for transition events; nil means slog.Default()
//
// Returns:
//   - *FailoverCoordinator: Ready to use; no goroutines are started
//
// Example:
//
//	holder := NewMasterHolder(current)
//	fc := NewFailoverCoordinator(holder, table, routing.SingleSlotRange.Start, logger)
//	fc.HaltWhen(shuttingDown.Load)
//	fc.TryPromote(ctx, current, candidate)
func NewFailoverCoordinator(master *MasterHolder, routing RoutingTable, slotStart int, logger *slog.Logger) *FailoverCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverCoordinator{
		master:    master,
		routing:   routing,
		slotStart: slotStart,
		log:       logger,
	}
}

// OnChange registers a callback invoked after each durable promotion.
func (f *FailoverCoordinator) OnChange(fn func(old, next cluster.NodeAddress)) {
	f.onChange = fn
}

// HaltWhen registers a check consulted right before every swap. While it
// returns true, TryPromote does nothing and reports Aborted.
func (f *FailoverCoordinator) HaltWhen(fn func() bool) {
	f.halted = fn
}

// TryPromote moves the master from old to next.
//
// The transition has two phases:
//  1. CompareAndSwap(old, next) on the holder. If the holder no longer
//     equals old, another report won and the call returns Superseded
//     without touching the routing table.
//  2. RebindMaster on the routing table. On failure the holder is swapped
//     back with CompareAndSwap(next, old), which is skipped if a newer
//     transition already replaced next, and the call returns RolledBack.
//
// No lock is held across the rebind, so between the swap and a failed
// rebind readers may briefly see next as master. A halted coordinator
// returns Aborted before phase 1; a halt that lands after the check still
// lets the swap through, and the rebind then fails on the cancelled ctx.
//
// Parameters:
//   - ctx: Bounds the rebind (the new master is verified over the network)
//   - old: The master snapshot the caller observed
//   - next: The node that reported itself as master
//
// Returns:
//   - PromotionResult: Promoted, Superseded, RolledBack or Aborted
func (f *FailoverCoordinator) TryPromote(ctx context.Context, old, next cluster.NodeAddress) PromotionResult {
	if f.halted != nil && f.halted() {
		f.log.Debug("master transition aborted", "old", old, "new", next)
		return Aborted
	}
	if !f.master.CompareAndSwap(old, next) {
		f.log.Debug("master transition superseded", "old", old, "new", next, "current", f.master.Load())
		return Superseded
	}

	if err := f.routing.RebindMaster(ctx, f.slotStart, next); err != nil {
		f.log.Error("unable to change master", "old", old, "new", next, "err", err)
		if !f.master.CompareAndSwap(next, old) {
			f.log.Debug("master rollback superseded", "old", old, "new", next, "current", f.master.Load())
		}
		return RolledBack
	}

	f.log.Info("master has changed", "old", old, "new", next)
	if f.onChange != nil {
		f.onChange(old, next)
	}
	return Promoted
}
