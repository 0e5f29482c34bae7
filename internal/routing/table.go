// Package routing maps slot ranges of the key space to the node currently
// serving writes for them and tracks which replicas are in read rotation.
// See doc.go for complete package documentation.
package routing

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/replwatch/internal/cluster"
)

// MaxSlot is the highest slot number of the key space.
const MaxSlot = 16383

var (
	// ErrUnknownSlotRange is returned when no entry starts at the given slot.
	ErrUnknownSlotRange = errors.New("unknown slot range")
	// ErrInvalidSlotRange is returned for ranges outside [0, MaxSlot] or reversed.
	ErrInvalidSlotRange = errors.New("invalid slot range")
	// ErrSlaveNotFound is returned when a slave address is not part of an entry.
	ErrSlaveNotFound = errors.New("slave not found")
)

// SlotRange is an inclusive range of slots.
type SlotRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// SingleSlotRange covers the whole key space. A replication group has one
// master, so it owns every slot.
var SingleSlotRange = SlotRange{Start: 0, End: MaxSlot}

// Contains reports whether slot falls inside the range.
func (r SlotRange) Contains(slot int) bool {
	return slot >= r.Start && slot <= r.End
}

// Overlaps reports whether the two ranges share at least one slot.
func (r SlotRange) Overlaps(o SlotRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

func (r SlotRange) valid() bool {
	return r.Start >= 0 && r.End <= MaxSlot && r.Start <= r.End
}

func (r SlotRange) String() string {
	return fmt.Sprintf("[%d-%d]", r.Start, r.End)
}

// VerifyFunc checks that a node is reachable before it is made master.
type VerifyFunc func(ctx context.Context, addr cluster.NodeAddress) error

// Table is the authoritative slot-range → master mapping, together with the
// replicas of each range.
//
// Concurrency Model:
//   - Entry lookups use RLock on the table
//   - Each Entry guards its own master and slave set
//   - No lock is held while verifying a new master
type Table struct {
	// entries maps slot range start to its entry.
	entries map[int]*Entry

	// verify is consulted before RebindMaster swaps a master. Nil means
	// every node is accepted.
	verify VerifyFunc

	mu sync.RWMutex
}

// NewTable creates an empty table. verify may be nil.
func NewTable(verify VerifyFunc) *Table {
	return &Table{
		entries: make(map[int]*Entry),
		verify:  verify,
	}
}

// InitEntry installs (or replaces) the entry for rng with the given master
// and slaves. Slaves start in read rotation.
//
// Returns an error if the range is invalid or overlaps a different entry.
func (t *Table) InitEntry(rng SlotRange, master cluster.NodeAddress, slaves []cluster.NodeAddress) error {
	if !rng.valid() {
		return fmt.Errorf("%w: %s", ErrInvalidSlotRange, rng)
	}
	if master.IsZero() {
		return errors.New("master address cannot be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for start, e := range t.entries {
		if start != rng.Start && e.Range.Overlaps(rng) {
			return fmt.Errorf("%w: %s overlaps %s", ErrInvalidSlotRange, rng, e.Range)
		}
	}

	t.entries[rng.Start] = newEntry(rng, master, slaves)
	return nil
}

// Entry returns the entry whose range starts at start, or nil.
func (t *Table) Entry(start int) *Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[start]
}

// EntryForSlot returns the entry whose range contains slot, or nil.
func (t *Table) EntryForSlot(slot int) *Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.Range.Contains(slot) {
			return e
		}
	}
	return nil
}

// SlotForKey hashes a key onto the slot space with FNV-1a.
func SlotForKey(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % (MaxSlot + 1))
}

// MasterForKey returns the master serving the slot of key.
func (t *Table) MasterForKey(key string) (cluster.NodeAddress, int, error) {
	slot := SlotForKey(key)
	e := t.EntryForSlot(slot)
	if e == nil {
		return cluster.NodeAddress{}, slot, fmt.Errorf("%w: slot %d is not served by any master", ErrUnknownSlotRange, slot)
	}
	return e.Master(), slot, nil
}

// RebindMaster points the entry starting at start to a new master.
//
// The new master is verified first; on verification failure the entry is
// left untouched and the error returned. A node that was serving reads as a
// slave is frozen with FreezeManager so it leaves the read rotation. The
// previous master is not touched: once it reports itself as a slave, the
// monitor brings it back with SlaveUp.
//
// Parameters:
//   - ctx: Bounds the verification round trip
//   - start: First slot of the entry (routing.SingleSlotRange.Start for a
//     replicated group)
//   - addr: The node to route writes to from now on
//
// Returns:
//   - error: ErrUnknownSlotRange when no entry starts at start, or the
//     verification error wrapped with the range and address; nil when addr
//     is already the master
//
// Example:
//
//	table := routing.NewTable(pool.Ping)
//	if err := table.RebindMaster(ctx, 0, candidate); err != nil {
//	    log.Printf("keeping old master: %v", err)
//	}
func (t *Table) RebindMaster(ctx context.Context, start int, addr cluster.NodeAddress) error {
	e := t.Entry(start)
	if e == nil {
		return fmt.Errorf("%w: %d", ErrUnknownSlotRange, start)
	}
	if e.Master() == addr {
		return nil
	}

	if t.verify != nil {
		if err := t.verify(ctx, addr); err != nil {
			return fmt.Errorf("rebind slot range %s to %s: %w", e.Range, addr, err)
		}
	}

	e.setMaster(addr)
	return nil
}

// SlaveUp puts addr into read rotation for the entry starting at start.
// Returns true only when the slave's state changed.
func (t *Table) SlaveUp(start int, addr cluster.NodeAddress, reason FreezeReason) bool {
	e := t.Entry(start)
	if e == nil {
		return false
	}
	return e.SlaveUp(addr, reason)
}

// SlaveDown takes addr out of read rotation for the entry starting at start.
// Returns true only when the slave's state changed.
func (t *Table) SlaveDown(start int, addr cluster.NodeAddress, reason FreezeReason) bool {
	e := t.Entry(start)
	if e == nil {
		return false
	}
	return e.SlaveDown(addr, reason)
}

// EntrySnapshot is a point-in-time copy of one entry.
type EntrySnapshot struct {
	Master cluster.NodeAddress `json:"master"`
	Slaves []SlaveState        `json:"slaves"`
	Range  SlotRange           `json:"range"`
}

// Snapshot returns copies of every entry ordered by range start.
func (t *Table) Snapshot() []EntrySnapshot {
	t.mu.RLock()
	entries := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	slices.SortFunc(entries, func(a, b *Entry) int {
		return cmp.Compare(a.Range.Start, b.Range.Start)
	})

	out := make([]EntrySnapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntrySnapshot{
			Range:  e.Range,
			Master: e.Master(),
			Slaves: e.Slaves(),
		})
	}
	return out
}
