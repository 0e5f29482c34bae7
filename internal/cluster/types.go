package cluster

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used when a configured address carries no port.
const DefaultPort = 6379

// ErrEmptyAddress is returned when parsing an empty node address.
var ErrEmptyAddress = errors.New("empty node address")

// NodeAddress identifies one configured member of a replication group.
// It is comparable and safe to use as a map key.
type NodeAddress struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ParseNodeAddress accepts "redis://host:port", "rediss://host:port",
// "host:port" and a bare "host" (port 6379).
func ParseNodeAddress(s string) (NodeAddress, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return NodeAddress{}, ErrEmptyAddress
	}
	for _, scheme := range []string{"redis://", "rediss://"} {
		raw = strings.TrimPrefix(raw, scheme)
	}
	raw = strings.TrimSuffix(raw, "/")

	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		// No port present; treat the whole string as the host.
		if strings.Contains(err.Error(), "missing port") {
			host = strings.Trim(raw, "[]")
			portStr = strconv.Itoa(DefaultPort)
		} else {
			return NodeAddress{}, fmt.Errorf("parse node address %q: %w", s, err)
		}
	}
	if host == "" {
		return NodeAddress{}, fmt.Errorf("parse node address %q: missing host", s)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return NodeAddress{}, fmt.Errorf("parse node address %q: invalid port %q", s, portStr)
	}
	return NodeAddress{Host: host, Port: port}, nil
}

// MustParseNodeAddress is like ParseNodeAddress but panics on error.
// Intended for tests and static tables.
func MustParseNodeAddress(s string) NodeAddress {
	addr, err := ParseNodeAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// String returns host:port, bracketing IPv6 hosts.
func (a NodeAddress) String() string {
	if a.IsZero() {
		return ""
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IsZero reports whether the address is unset.
func (a NodeAddress) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

// MarshalText renders the address as host:port so it reads naturally in JSON.
func (a NodeAddress) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses host:port (or any form ParseNodeAddress accepts).
func (a *NodeAddress) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = NodeAddress{}
		return nil
	}
	parsed, err := ParseNodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Role is the replication role a node reports about itself.
type Role string

const (
	// RoleMaster is the single writable node of the group.
	RoleMaster Role = "master"
	// RoleSlave is a read-only replica tracking the master.
	RoleSlave Role = "slave"
)

// ProbeOutcome is the terminal result of probing one node.
// Err is nil on success, in which case Role is set.
type ProbeOutcome struct {
	Err  error
	Addr NodeAddress
	Role Role
}

// OK reports whether the probe produced a role.
func (o ProbeOutcome) OK() bool {
	return o.Err == nil
}
