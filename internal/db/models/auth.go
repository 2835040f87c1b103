package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// NormalizeEmail produces the canonical lookup form of an email address.
// Email and EmailNormalized always move together.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// JSONMap stores a free-form JSON object column.
type JSONMap map[string]any

// Scan implements sql.Scanner for reading from database
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = make(JSONMap)
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("failed to scan JSONMap: expected []byte or string, got %T", value)
	}
}

// Value implements driver.Valuer for writing to database
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// User represents a human principal. Shell users (created by an admin or by
// the bootstrap prestart) carry a nil PasswordHash until they claim their
// setup token; only users with a hash can log in.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID               string     `bun:"id,pk,type:uuid"`
	Email            string     `bun:"email,notnull"`
	EmailNormalized  string     `bun:"email_normalized,notnull,unique"`
	PasswordHash     *string    `bun:"password_hash"` // argon2id PHC string
	EmailVerifiedAt  *time.Time `bun:"email_verified_at"`
	IsDisabled       bool       `bun:"is_disabled,notnull,default:false"`
	FailedLoginCount int        `bun:"failed_login_count,notnull,default:0"`
	LockedUntil      *time.Time `bun:"locked_until"`
	LastLoginAt      *time.Time `bun:"last_login_at"`
	LastLoginIP      *string    `bun:"last_login_ip"`
	DisplayName      string     `bun:"display_name"`
	CreatedAt        time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,notnull,default:current_timestamp"`

	Roles []*Role `bun:"-"`
}

// HasCredentials reports whether the user can complete a password login.
func (u *User) HasCredentials() bool {
	return u != nil && u.PasswordHash != nil && *u.PasswordHash != ""
}

// Role groups permissions under a stable name (e.g. "admin", "user").
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:r"`

	ID          string    `bun:"id,pk,type:uuid"`
	Name        string    `bun:"name,notnull,unique"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`

	Permissions []*Permission `bun:"-"`
	UsersCount  int           `bun:"-"`
}

// Permission is a grantable capability code. Broad codes ("nodes:read") are
// seeded; per-node codes ("node:read:<id>") are provisioned on first use.
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:p"`

	ID          string    `bun:"id,pk,type:uuid"`
	Code        string    `bun:"code,notnull,unique"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// UserRole links a user to a role.
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`

	UserID string `bun:"user_id,pk,type:uuid"` // FK to users(id), cascade
	RoleID string `bun:"role_id,pk,type:uuid"` // FK to roles(id), restrict
}

// RolePermission links a role to a permission.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`

	RoleID       string `bun:"role_id,pk,type:uuid"`       // FK to roles(id), cascade
	PermissionID string `bun:"permission_id,pk,type:uuid"` // FK to permissions(id), cascade
}

// Session is an opaque bearer session. Only the SHA-256 hash of the token is
// stored; the plaintext is returned once at login and never persisted.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:sess"`

	ID         string     `bun:"id,pk,type:uuid"`
	UserID     string     `bun:"user_id,notnull,type:uuid"` // FK to users(id), cascade
	TokenHash  string     `bun:"token_hash,notnull,unique"` // SHA-256 hex of bearer token
	CreatedAt  time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	ExpiresAt  time.Time  `bun:"expires_at,notnull"`
	RevokedAt  *time.Time `bun:"revoked_at"`
	LastSeenAt *time.Time `bun:"last_seen_at"`
	IP         *string    `bun:"ip"`
	UserAgent  *string    `bun:"user_agent"`
}

// Active reports whether the session is usable at the given instant.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// AuthToken purposes.
const (
	TokenTypeVerifyEmail   = "VERIFY_EMAIL"
	TokenTypeResetPassword = "RESET_PASSWORD"
	TokenTypeChangeEmail   = "CHANGE_EMAIL"
)

// AuthToken is a single-use, hashed out-of-band token (password setup/reset,
// email verification). Bootstrap claim tokens are RESET_PASSWORD tokens whose
// metadata carries {"bootstrap": true}.
type AuthToken struct {
	bun.BaseModel `bun:"table:auth_tokens,alias:at"`

	ID         string     `bun:"id,pk,type:uuid"`
	UserID     string     `bun:"user_id,notnull,type:uuid"` // FK to users(id), cascade
	Type       string     `bun:"type,notnull"`
	TokenHash  string     `bun:"token_hash,notnull,unique"` // SHA-256 hex of token plaintext
	ExpiresAt  time.Time  `bun:"expires_at,notnull"`
	ConsumedAt *time.Time `bun:"consumed_at"`
	Metadata   JSONMap    `bun:"metadata,type:jsonb"`
	CreatedAt  time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// Usable reports whether the token can still be consumed.
func (t *AuthToken) Usable(now time.Time) bool {
	return t != nil && t.ConsumedAt == nil && t.ExpiresAt.After(now)
}

// IsBootstrap reports whether the token was minted by the bootstrap prestart.
func (t *AuthToken) IsBootstrap() bool {
	if t == nil || t.Metadata == nil {
		return false
	}
	v, ok := t.Metadata["bootstrap"].(bool)
	return ok && v
}

// Audit actions recorded by the identity and node services.
const (
	AuditLoginSuccess     = "LOGIN_SUCCESS"
	AuditLoginFailed      = "LOGIN_FAILED"
	AuditLogout           = "LOGOUT"
	AuditBootstrapClaimed = "BOOTSTRAP_CLAIMED"
	AuditUserCreated      = "USER_CREATED"
	AuditPasswordSet      = "PASSWORD_SET"
	AuditRolesChanged     = "ROLES_CHANGED"
	AuditNodeCreated      = "NODE_CREATED"
	AuditNodeDeleted      = "NODE_DELETED"
)

// AuditLog is an append-only security event record. UserID survives user
// deletion as NULL so history stays intact.
type AuditLog struct {
	bun.BaseModel `bun:"table:audit_logs,alias:al"`

	ID        string    `bun:"id,pk,type:uuid"`
	UserID    *string   `bun:"user_id,type:uuid"` // FK to users(id), set null
	Action    string    `bun:"action,notnull"`
	IP        *string   `bun:"ip"`
	UserAgent *string   `bun:"user_agent"`
	Details   JSONMap   `bun:"details,type:jsonb"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
