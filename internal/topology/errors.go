package topology

import (
	"errors"
	"fmt"

	"github.com/dreamware/replwatch/internal/cluster"
)

var (
	// ErrNoMasterFound is returned by NewManager when no configured node
	// reported itself as master.
	ErrNoMasterFound = errors.New("no master found among configured nodes")
	// ErrRoleMissing is returned when a role report carries no role.
	ErrRoleMissing = errors.New("role missing from replication info")
	// ErrUnknownRole is returned for roles other than master and slave.
	ErrUnknownRole = errors.New("unknown replication role")
)

// Probe stages.
const (
	StageConnect = "connect"
	StageQuery   = "query"
)

// ProbeError is a failed probe of one node.
type ProbeError struct {
	Err   error
	Stage string
	Addr  cluster.NodeAddress
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s of %s: %v", e.Stage, e.Addr, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}
