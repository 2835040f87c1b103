package identity

import (
	"fmt"
	"regexp"
	"strings"
)

// Reserved role names seeded by the migrations.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Static permission codes seeded by the migrations.
const (
	PermHealthRead  = "health:read"
	PermNodesRead   = "nodes:read"
	PermNodesCreate = "nodes:create"
	PermNodesDelete = "nodes:delete"
	PermUsersCreate = "users:create"
	PermUsersRead   = "users:read"
	PermRolesAssign = "roles:assign"
	PermAuthMe      = "auth:me"
)

// roleNameRE is the allowed shape of role names.
var roleNameRE = regexp.MustCompile(`^[a-z][a-z0-9:_-]*$`)

// ValidRoleName reports whether name may be used for a role.
func ValidRoleName(name string) bool {
	return roleNameRE.MatchString(name)
}

// NodeReadCode and NodeWriteCode build the per-node dynamic permission
// codes. These are provisioned lazily: the first role edit that references
// one creates the permission row.
func NodeReadCode(nodeID string) string {
	return fmt.Sprintf("node:read:%s", nodeID)
}

func NodeWriteCode(nodeID string) string {
	return fmt.Sprintf("node:write:%s", nodeID)
}

// IsDynamicNodeCode reports whether code is a per-node code eligible for
// lazy provisioning. The check never parses the node id itself; authorization
// stays a plain set-membership test.
func IsDynamicNodeCode(code string) bool {
	rest, ok := strings.CutPrefix(code, "node:")
	if !ok {
		return false
	}
	kind, id, ok := strings.Cut(rest, ":")
	if !ok || id == "" {
		return false
	}
	return kind == "read" || kind == "write"
}
