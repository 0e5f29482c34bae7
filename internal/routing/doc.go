// Package routing implements the routing table consulted by a client-side
// connection manager: which node serves writes for a slot range, and which
// replicas may serve reads.
//
// # Overview
//
// The key space is divided into slots [0, MaxSlot]. Each Entry owns an
// inclusive SlotRange and records its master plus a set of replicas. A
// replicated group (one master, N replicas) uses a single entry covering
// SingleSlotRange.
//
//	┌──────────────────────────────────────┐
//	│               Table                  │
//	├──────────────────────────────────────┤
//	│  entries: rangeStart → *Entry        │
//	│  verify:  reachability check         │
//	├──────────────────────────────────────┤
//	│  Key → FNV-1a → Slot → Entry → Master│
//	│  "user:1" → 0x9e3f… → 1207 → node-a  │
//	└──────────────────────────────────────┘
//
// # Failover
//
// RebindMaster swaps the master of an entry after verifying the new node
// answers. If the new master was a replica it is frozen with FreezeManager,
// since a promoted node no longer replicates. The previous master is not
// kept as a replica: once it comes back and reports itself as a slave, the
// topology monitor brings it up again through SlaveUp.
//
// # Freeze reasons
//
// Replicas leave read rotation with a FreezeReason:
//
//	FreezeManager    set/lifted by the topology monitor
//	FreezeReconnect  set by the transport, lifted by the monitor too
//	FreezeSystem     operator freeze, lifted only by the operator
//
// SlaveUp and SlaveDown return true only when state changed, which makes
// repeated reports from the monitor idempotent and lets callers log exactly
// one "slave is up" line per transition.
//
// # Thread Safety
//
// The table and each entry carry their own RWMutex. All accessors return
// copies. No lock is held while RebindMaster verifies the new master, so a
// slow node never blocks readers of the table.
package routing
