// Package cluster holds the small value types shared by every layer of
// replwatch: the address of a replication-group member, the role it reports,
// and the outcome of probing it.
//
// # Overview
//
// A replication group is a fixed list of nodes supplied by configuration.
// Exactly one of them is expected to be the writable master at any time; the
// rest are read-only slaves. Roles are never persisted: they are derived from
// each probe and live only as long as one scan cycle's decision.
//
//	            configuration
//	                 │
//	     ┌───────────┼───────────┐
//	     ▼           ▼           ▼
//	┌─────────┐ ┌─────────┐ ┌─────────┐
//	│ node-a  │ │ node-b  │ │ node-c  │
//	│ master  │ │ slave   │ │ slave   │
//	└─────────┘ └─────────┘ └─────────┘
//
// # Addresses
//
// NodeAddress is a comparable host/port pair. ParseNodeAddress accepts the
// usual spellings found in client configuration files:
//
//	redis://10.0.0.1:6379
//	rediss://cache.example.com:6380
//	10.0.0.1:6379
//	cache.example.com          (port 6379)
//
// Because NodeAddress implements encoding.TextMarshaler it renders as
// "host:port" in JSON documents and can be used as a JSON object key.
//
// # Probe outcomes
//
// ProbeOutcome is produced once per node per cycle and consumed once by the
// cycle aggregator. A failed probe carries its error; a successful one carries
// the classified Role.
package cluster
