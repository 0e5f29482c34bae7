// Package topology discovers which node of a replicated group is the master
// and keeps watching for the master moving.
//
// # Overview
//
// A Manager is given a fixed list of node addresses. At construction it
// probes all of them in parallel, adopts the first node (in configuration
// order) that reports itself as master, collects the slaves, and primes the
// routing table with a single entry covering every slot. From then on a scan
// cycle runs every scan interval.
//
//	┌──────────────────────────────────────────────┐
//	│                  Manager                     │
//	├──────────────────────────────────────────────┤
//	│  Scheduler ──tick──▶ scan                    │
//	│                        │                     │
//	│          ┌─────────────┼─────────────┐       │
//	│          ▼             ▼             ▼       │
//	│      probe(a)      probe(b)      probe(c)    │
//	│          │             │             │       │
//	│          ▼             ▼             ▼       │
//	│      ClassifyRole  ClassifyRole  ClassifyRole│
//	│          │             │             │       │
//	│   master≠snapshot   slave         master=    │
//	│          │             │          snapshot   │
//	│          ▼             ▼             │       │
//	│   FailoverCoord.   SlaveUp          debug    │
//	│          └─────────────┴─────────────┘       │
//	│                        │ join                │
//	│                        ▼                     │
//	│                  CycleReport ──▶ re-arm      │
//	└──────────────────────────────────────────────┘
//
// # Cycles
//
// Cycles never overlap. The next tick is armed only after every probe of
// the current cycle has reported, success or failure, so a cycle in which
// all nodes are down still re-arms. There is no backoff: the scan interval
// is the retry period.
//
// # Failover
//
// The current master lives in a MasterHolder and only changes through
// compare-and-swap against the snapshot taken at the start of the cycle.
// FailoverCoordinator swaps first, then rebinds the routing table; a failed
// rebind swaps back unless a newer transition has already happened. When
// two nodes claim mastership in the same cycle the first swap wins and the
// other attempt is reported as Superseded.
//
// # Shutdown
//
// Shutdown cancels the manager's context, so in-flight probes return early
// and their results are discarded. It then waits for a running cycle to
// finish and closes every node connection.
package topology
