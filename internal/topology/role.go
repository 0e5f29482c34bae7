package topology

import (
	"fmt"
	"strings"

	"github.com/dreamware/replwatch/internal/cluster"
)

// RoleKey is the replication-info field carrying the node's role.
const RoleKey = "role"

// ClassifyRole interprets a raw replication report. "replica" is accepted as
// a synonym for "slave".
func ClassifyRole(info map[string]string) (cluster.Role, error) {
	raw, ok := info[RoleKey]
	if !ok || strings.TrimSpace(raw) == "" {
		return "", ErrRoleMissing
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "master":
		return cluster.RoleMaster, nil
	case "slave", "replica":
		return cluster.RoleSlave, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}
