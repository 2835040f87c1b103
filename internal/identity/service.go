// Package identity implements authentication, sessions, authorization and
// the user lifecycle: argon2id password hashing, opaque hashed bearer
// sessions, single-use setup/reset tokens, the role/permission model and the
// first-admin bootstrap.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/bunx"
	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/GustavPetterssonBjorklund/Statix/internal/logging"
	"github.com/GustavPetterssonBjorklund/Statix/internal/repository"
)

const (
	snapshotCacheSize = 1024
	snapshotCacheTTL  = 30 * time.Second
)

// Dependencies collects the repositories the identity service runs on.
type Dependencies struct {
	Users       repository.UserRepository
	Roles       repository.RoleRepository
	Permissions repository.PermissionRepository
	Sessions    repository.SessionRepository
	AuthTokens  repository.AuthTokenRepository
	Audit       repository.AuditLogRepository
}

// Service coordinates the identity repositories. All methods are safe for
// concurrent use.
type Service struct {
	users       repository.UserRepository
	roles       repository.RoleRepository
	permissions repository.PermissionRepository
	sessions    repository.SessionRepository
	authTokens  repository.AuthTokenRepository
	audit       repository.AuditLogRepository

	// snapshots caches token-hash → identity for the hot Authenticate
	// path. Entries are dropped on logout so revocation stays immediate;
	// the short TTL bounds staleness of role/permission edits.
	snapshots *expirable.LRU[string, *Snapshot]

	clock clockwork.Clock
	log   zerolog.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithClock substitutes the wall clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// NewService creates the identity service.
func NewService(deps Dependencies, opts ...Option) *Service {
	s := &Service{
		users:       deps.Users,
		roles:       deps.Roles,
		permissions: deps.Permissions,
		sessions:    deps.Sessions,
		authTokens:  deps.AuthTokens,
		audit:       deps.Audit,
		snapshots:   expirable.NewLRU[string, *Snapshot](snapshotCacheSize, nil, snapshotCacheTTL),
		clock:       clockwork.NewRealClock(),
		log:         logging.WithComponent("identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginResult carries the one-time bearer plaintext back to the caller.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *Snapshot
}

// Login authenticates email+password and opens a session. Unknown emails,
// shell users and wrong passwords all fail with ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string, ip, userAgent *string) (*LoginResult, error) {
	now := s.clock.Now().UTC()

	user, err := s.users.GetByNormalizedEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login lookup: %w", err)
	}
	if !user.HasCredentials() {
		return nil, ErrInvalidCredentials
	}

	ok, err := VerifyPassword(password, *user.PasswordHash)
	if err != nil || !ok {
		if recErr := s.users.RecordLoginFailure(ctx, user.ID, now); recErr != nil {
			s.log.Error().Err(recErr).Str("user_id", user.ID).Msg("record login failure")
		}
		s.recordAudit(ctx, &user.ID, models.AuditLoginFailed, ip, userAgent, nil)
		return nil, ErrInvalidCredentials
	}
	if user.IsDisabled {
		return nil, ErrAccountDisabled
	}

	plaintext, hash, err := MintToken()
	if err != nil {
		return nil, fmt.Errorf("mint session token: %w", err)
	}
	session := &models.Session{
		ID:        bunx.NewUUIDv7(),
		UserID:    user.ID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: now.Add(SessionTTL),
		IP:        ip,
		UserAgent: userAgent,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := s.users.RecordLoginSuccess(ctx, user.ID, ip, now); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("record login success")
	}
	s.recordAudit(ctx, &user.ID, models.AuditLoginSuccess, ip, userAgent, nil)

	snap, err := s.buildSnapshot(ctx, user, session)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: plaintext, ExpiresAt: session.ExpiresAt, User: snap}, nil
}

// Authenticate resolves a bearer plaintext to the identity behind it,
// touching the session's last_seen_at at most once per cache TTL.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*Snapshot, error) {
	if bearer == "" {
		return nil, ErrInvalidToken
	}
	hash := HashToken(bearer)

	if snap, ok := s.snapshots.Get(hash); ok {
		return snap, nil
	}

	session, err := s.sessions.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	now := s.clock.Now().UTC()
	if !session.Active(now) {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("session user lookup: %w", err)
	}
	if user.IsDisabled {
		return nil, ErrAccountDisabled
	}

	if err := s.sessions.Touch(ctx, session.ID, now); err != nil {
		s.log.Error().Err(err).Str("session_id", session.ID).Msg("touch session")
	}

	snap, err := s.buildSnapshot(ctx, user, session)
	if err != nil {
		return nil, err
	}
	s.snapshots.Add(hash, snap)
	return snap, nil
}

// Logout revokes the session behind the bearer. Unknown bearers are a no-op.
func (s *Service) Logout(ctx context.Context, bearer string) error {
	if bearer == "" {
		return nil
	}
	hash := HashToken(bearer)

	var userID *string
	if snap, ok := s.snapshots.Get(hash); ok {
		userID = &snap.UserID
	}
	s.snapshots.Remove(hash)

	if err := s.sessions.RevokeByTokenHash(ctx, hash, s.clock.Now().UTC()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.recordAudit(ctx, userID, models.AuditLogout, nil, nil, nil)
	return nil
}

// buildSnapshot flattens the user's roles and permission codes into the
// request-context view.
func (s *Service) buildSnapshot(ctx context.Context, user *models.User, session *models.Session) (*Snapshot, error) {
	roles, err := s.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve roles: %w", err)
	}
	codes, err := s.permissions.CodesForUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	sort.Strings(codes)

	roleNames := make([]string, 0, len(roles))
	for _, r := range roles {
		roleNames = append(roleNames, r.Name)
	}

	snap := &Snapshot{
		UserID:      user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		IsDisabled:  user.IsDisabled,
		LastLoginAt: user.LastLoginAt,
		Roles:       roleNames,
		Permissions: codes,
	}
	if session != nil {
		snap.SessionID = session.ID
		snap.tokenHash = session.TokenHash
	}
	return snap, nil
}

// invalidateUser drops every cached snapshot for the user so role and
// credential changes take effect on the next request.
func (s *Service) invalidateUser(userID string) {
	for _, hash := range s.snapshots.Keys() {
		if snap, ok := s.snapshots.Peek(hash); ok && snap.UserID == userID {
			s.snapshots.Remove(hash)
		}
	}
}

// recordAudit appends a security event, best-effort: a failed audit write is
// logged and never fails the calling operation.
func (s *Service) recordAudit(ctx context.Context, userID *string, action string, ip, userAgent *string, details models.JSONMap) {
	entry := &models.AuditLog{
		ID:        bunx.NewUUIDv7(),
		UserID:    userID,
		Action:    action,
		IP:        ip,
		UserAgent: userAgent,
		Details:   details,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("action", action).Msg("record audit event")
	}
}
