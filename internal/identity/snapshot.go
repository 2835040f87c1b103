package identity

import (
	"strings"
	"time"
)

// Snapshot is the resolved identity behind a bearer session: the user, its
// role names and the flattened union of permission codes. It is what the
// HTTP layer stores in the request context and what /auth/me returns.
type Snapshot struct {
	UserID      string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName,omitempty"`
	IsDisabled  bool       `json:"isDisabled"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	Roles       []string   `json:"roles"`
	Permissions []string   `json:"permissions"` // sorted union across roles

	SessionID string `json:"-"`
	tokenHash string
}

// Can reports whether the snapshot holds the exact permission code.
func (s *Snapshot) Can(code string) bool {
	for _, c := range s.Permissions {
		if c == code {
			return true
		}
	}
	return false
}

// HasRole reports whether the snapshot holds the named role.
func (s *Snapshot) HasRole(name string) bool {
	for _, r := range s.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// IsAdmin gates the /auth/users|roles|permissions surface.
func (s *Snapshot) IsAdmin() bool {
	return s.HasRole(RoleAdmin)
}

// CanReadNode allows the broad code or the per-node dynamic code.
func (s *Snapshot) CanReadNode(nodeID string) bool {
	return s.Can(PermNodesRead) || s.Can(NodeReadCode(nodeID))
}

// CanWriteNode allows the broad delete code or the per-node write code.
func (s *Snapshot) CanWriteNode(nodeID string) bool {
	return s.Can(PermNodesDelete) || s.Can(NodeWriteCode(nodeID))
}

// CanReadAnyNode reports whether the snapshot may list nodes at all: either
// the broad code or at least one per-node read code.
func (s *Snapshot) CanReadAnyNode() bool {
	if s.Can(PermNodesRead) {
		return true
	}
	for _, c := range s.Permissions {
		if strings.HasPrefix(c, "node:read:") {
			return true
		}
	}
	return false
}
