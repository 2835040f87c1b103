package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/bunx"
	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/GustavPetterssonBjorklund/Statix/internal/repository"
)

// CreatedUser carries the invite result, including the setup token plaintext
// that is returned exactly once.
type CreatedUser struct {
	ID                  string
	Email               string
	SetupToken          string
	SetupTokenExpiresAt time.Time
}

// CreateUser provisions a shell user with the "user" role and mints a setup
// token the invitee redeems through SetPassword.
func (s *Service) CreateUser(ctx context.Context, email, displayName string) (*CreatedUser, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	now := s.clock.Now().UTC()

	user := &models.User{
		ID:              bunx.NewUUIDv7(),
		Email:           email,
		EmailNormalized: models.NormalizeEmail(email),
		DisplayName:     displayName,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	userRole, err := s.roles.Ensure(ctx, RoleUser, "Standard user access")
	if err != nil {
		return nil, fmt.Errorf("ensure user role: %w", err)
	}
	if err := s.roles.Assign(ctx, user.ID, userRole.ID); err != nil {
		return nil, fmt.Errorf("assign user role: %w", err)
	}

	plaintext, hash, err := MintToken()
	if err != nil {
		return nil, fmt.Errorf("mint setup token: %w", err)
	}
	token := &models.AuthToken{
		ID:        bunx.NewUUIDv7(),
		UserID:    user.ID,
		Type:      models.TokenTypeResetPassword,
		TokenHash: hash,
		ExpiresAt: now.Add(SetupTokenTTL),
		CreatedAt: now,
	}
	if err := s.authTokens.Rotate(ctx, token); err != nil {
		return nil, fmt.Errorf("create setup token: %w", err)
	}

	s.recordAudit(ctx, &user.ID, models.AuditUserCreated, nil, nil, models.JSONMap{"email": email})
	return &CreatedUser{
		ID:                  user.ID,
		Email:               user.Email,
		SetupToken:          plaintext,
		SetupTokenExpiresAt: token.ExpiresAt,
	}, nil
}

// SetPassword redeems a setup/reset token: stores the new password hash,
// marks the email verified, clears the lockout counters and consumes the
// token. A consumed or expired token fails with ErrInvalidToken.
func (s *Service) SetPassword(ctx context.Context, tokenPlaintext, password string) error {
	now := s.clock.Now().UTC()

	token, err := s.authTokens.GetUsableByHash(ctx, HashToken(tokenPlaintext), now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("setup token lookup: %w", err)
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.SetCredentials(ctx, token.UserID, passwordHash, nil, nil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("set password: %w", err)
	}
	if err := s.authTokens.Consume(ctx, token.ID, now); err != nil {
		return fmt.Errorf("consume setup token: %w", err)
	}

	s.invalidateUser(token.UserID)
	s.recordAudit(ctx, &token.UserID, models.AuditPasswordSet, nil, nil, nil)
	return nil
}

// ReplaceUserRoles swaps a user's role set by name, with set-equality
// semantics. It refuses the empty set, unresolved names, and any change that
// would leave the system without a credentialed admin.
func (s *Service) ReplaceUserRoles(ctx context.Context, userID string, roleNames []string) (*models.User, error) {
	if len(roleNames) == 0 {
		return nil, ErrNoRoles
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("replace roles user lookup: %w", err)
	}

	wanted := make(map[string]bool, len(roleNames))
	for _, name := range roleNames {
		wanted[name] = true
	}
	names := make([]string, 0, len(wanted))
	for name := range wanted {
		names = append(names, name)
	}

	roles, err := s.roles.GetByNames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("resolve role names: %w", err)
	}
	if len(roles) != len(wanted) {
		return nil, ErrUnknownRole
	}

	// Admin floor: dropping admin from this user requires another
	// credentialed admin to exist.
	if !wanted[RoleAdmin] && user.HasCredentials() {
		current, err := s.roles.RolesForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("current roles: %w", err)
		}
		hadAdmin := false
		for _, r := range current {
			if r.Name == RoleAdmin {
				hadAdmin = true
			}
		}
		if hadAdmin {
			other, err := s.users.HasCredentialedAdmin(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("admin floor check: %w", err)
			}
			if !other {
				return nil, ErrLastAdmin
			}
		}
	}

	roleIDs := make([]string, 0, len(roles))
	for _, r := range roles {
		roleIDs = append(roleIDs, r.ID)
	}
	if err := s.roles.ReplaceUserRoles(ctx, userID, roleIDs); err != nil {
		return nil, fmt.Errorf("replace user roles: %w", err)
	}

	s.invalidateUser(userID)
	s.recordAudit(ctx, &userID, models.AuditRolesChanged, nil, nil, models.JSONMap{"roles": roleNames})

	updated, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	updatedRoles, err := s.roles.RolesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reload roles: %w", err)
	}
	updated.Roles = updatedRoles
	return updated, nil
}

// ListUsers returns every user with roles attached, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.ListWithRoles(ctx)
}
