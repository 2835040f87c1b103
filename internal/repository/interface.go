package repository

import (
	"context"
	"time"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
)

// NodeRepository exposes persistence operations for fleet nodes.
type NodeRepository interface {
	Create(ctx context.Context, node *models.Node) error
	GetByID(ctx context.Context, id string) (*models.Node, error)
	UpdateName(ctx context.Context, id string, name *string) (*models.Node, error)
	Delete(ctx context.Context, id string) error
	ListWithStats(ctx context.Context) ([]models.NodeWithStats, error)
}

// MetricRepository exposes the append-only telemetry series.
type MetricRepository interface {
	// Append inserts one sample and advances the node's last_seen_at to the
	// sample time, atomically. Unknown node returns ErrNotFound.
	Append(ctx context.Context, metric *models.Metric) error

	// ListRecent returns the newest samples for a node in ascending ts
	// order. The limit is clamped to [1, 300].
	ListRecent(ctx context.Context, nodeID string, limit int) ([]models.Metric, error)
}

// SystemInfoRepository holds the one-row-per-node inventory.
type SystemInfoRepository interface {
	// Upsert replaces the node's inventory when the hash differs and always
	// advances the node's last_seen_at, atomically. Returns whether the
	// stored inventory changed. Unknown node returns ErrNotFound.
	Upsert(ctx context.Context, info *models.NodeSystemInfo) (changed bool, err error)
	GetByNodeID(ctx context.Context, nodeID string) (*models.NodeSystemInfo, error)
}

// UserRepository exposes persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByNormalizedEmail(ctx context.Context, emailNormalized string) (*models.User, error)
	ListWithRoles(ctx context.Context) ([]models.User, error)
	Delete(ctx context.Context, id string) error

	// SetCredentials stores a password hash (and optional profile fields)
	// and marks the email verified.
	SetCredentials(ctx context.Context, id string, passwordHash string, email, displayName *string) error

	RecordLoginSuccess(ctx context.Context, id string, ip *string, at time.Time) error
	RecordLoginFailure(ctx context.Context, id string, at time.Time) error

	// HasCredentialedAdmin reports whether any user outside excludeUserIDs
	// holds the admin role with a non-null password hash.
	HasCredentialedAdmin(ctx context.Context, excludeUserIDs ...string) (bool, error)
}

// RoleRepository exposes role rows plus user/role and role/permission edges.
type RoleRepository interface {
	Ensure(ctx context.Context, name, description string) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	GetByNames(ctx context.Context, names []string) ([]models.Role, error)
	ListWithPermissions(ctx context.Context) ([]models.Role, error)
	RolesForUser(ctx context.Context, userID string) ([]*models.Role, error)

	Assign(ctx context.Context, userID, roleID string) error
	ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string) error
	ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
}

// PermissionRepository exposes permission codes.
type PermissionRepository interface {
	Ensure(ctx context.Context, code, description string) (*models.Permission, error)
	List(ctx context.Context) ([]models.Permission, error)
	GetByCodes(ctx context.Context, codes []string) ([]models.Permission, error)

	// CodesForUser returns the sorted, de-duplicated union of permission
	// codes across all of the user's roles.
	CodesForUser(ctx context.Context, userID string) ([]string, error)
}

// SessionRepository exposes bearer sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error

	// RevokeByTokenHash revokes the session if it exists; revoking an
	// unknown or already-revoked token is a no-op.
	RevokeByTokenHash(ctx context.Context, tokenHash string, at time.Time) error
}

// AuthTokenRepository exposes single-use out-of-band tokens.
type AuthTokenRepository interface {
	Create(ctx context.Context, token *models.AuthToken) error

	// Rotate deletes the user's outstanding unconsumed tokens of the same
	// type and inserts the replacement, atomically.
	Rotate(ctx context.Context, token *models.AuthToken) error

	// GetUsableByHash returns the token only if it is unconsumed and
	// unexpired at the given instant.
	GetUsableByHash(ctx context.Context, tokenHash string, now time.Time) (*models.AuthToken, error)

	// ActiveForUser returns the user's unconsumed, unexpired tokens of the
	// given type, newest first.
	ActiveForUser(ctx context.Context, userID, tokenType string, now time.Time) ([]models.AuthToken, error)

	Consume(ctx context.Context, id string, at time.Time) error
}

// AuditLogRepository appends security events.
type AuditLogRepository interface {
	Record(ctx context.Context, entry *models.AuditLog) error
}
