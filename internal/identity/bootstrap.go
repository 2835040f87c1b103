package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/bunx"
	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/GustavPetterssonBjorklund/Statix/internal/repository"
)

// BootstrapEmail is the reserved address of the shell admin account. It is
// unroutable on purpose; the claim replaces it with the operator's email.
const BootstrapEmail = "admin@bootstrap.statix.internal"

// Prestart enforces the first-admin invariant on server start: either a
// credentialed admin exists (then any leftover shell admin is purged), or a
// shell admin with the admin role and one active claim token exists. The
// token plaintext is surfaced through the server log only.
func (s *Service) Prestart(ctx context.Context) error {
	now := s.clock.Now().UTC()

	shell, err := s.users.GetByNormalizedEmail(ctx, models.NormalizeEmail(BootstrapEmail))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("bootstrap prestart lookup: %w", err)
	}

	var exclude []string
	if shell != nil {
		exclude = append(exclude, shell.ID)
	}
	claimed, err := s.users.HasCredentialedAdmin(ctx, exclude...)
	if err != nil {
		return fmt.Errorf("bootstrap prestart admin check: %w", err)
	}

	if claimed {
		if shell != nil {
			if err := s.users.Delete(ctx, shell.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("purge shell admin: %w", err)
			}
			s.log.Info().Msg("bootstrap complete, shell admin purged")
		}
		return nil
	}

	if shell == nil {
		shell = &models.User{
			ID:              bunx.NewUUIDv7(),
			Email:           BootstrapEmail,
			EmailNormalized: models.NormalizeEmail(BootstrapEmail),
			DisplayName:     "Bootstrap Admin",
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.users.Create(ctx, shell); err != nil {
			return fmt.Errorf("create shell admin: %w", err)
		}
	}

	adminRole, err := s.roles.Ensure(ctx, RoleAdmin, "Full administrative access")
	if err != nil {
		return fmt.Errorf("ensure admin role: %w", err)
	}
	if err := s.roles.Assign(ctx, shell.ID, adminRole.ID); err != nil {
		return fmt.Errorf("assign admin role: %w", err)
	}

	active, err := s.authTokens.ActiveForUser(ctx, shell.ID, models.TokenTypeResetPassword, now)
	if err != nil {
		return fmt.Errorf("check bootstrap token: %w", err)
	}
	if len(active) > 0 {
		s.log.Warn().Time("expires_at", active[0].ExpiresAt).
			Msg("[bootstrap] pending; claim token from a previous start is still active")
		return nil
	}

	plaintext, hash, err := MintToken()
	if err != nil {
		return fmt.Errorf("mint bootstrap token: %w", err)
	}
	token := &models.AuthToken{
		ID:        bunx.NewUUIDv7(),
		UserID:    shell.ID,
		Type:      models.TokenTypeResetPassword,
		TokenHash: hash,
		ExpiresAt: now.Add(SetupTokenTTL),
		Metadata:  models.JSONMap{"bootstrap": true},
		CreatedAt: now,
	}
	if err := s.authTokens.Rotate(ctx, token); err != nil {
		return fmt.Errorf("rotate bootstrap token: %w", err)
	}

	// The only place the plaintext ever leaves the process.
	s.log.Warn().Time("expires_at", token.ExpiresAt).
		Msgf("[bootstrap] token=%s", plaintext)
	return nil
}

// NeedsBootstrap reports whether no credentialed admin exists yet.
func (s *Service) NeedsBootstrap(ctx context.Context) (bool, error) {
	claimed, err := s.users.HasCredentialedAdmin(ctx)
	if err != nil {
		return false, fmt.Errorf("bootstrap status: %w", err)
	}
	return !claimed, nil
}

// ClaimBootstrap converts the shell admin into the operator's credentialed
// admin account: it verifies the claim token, sets email, password and
// display name, and consumes the token.
func (s *Service) ClaimBootstrap(ctx context.Context, tokenPlaintext, email, password, displayName string) error {
	now := s.clock.Now().UTC()

	token, err := s.authTokens.GetUsableByHash(ctx, HashToken(tokenPlaintext), now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("bootstrap claim lookup: %w", err)
	}
	if !token.IsBootstrap() {
		return ErrNotBootstrapEligible
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("bootstrap claim user: %w", err)
	}
	// The token must still point at the unclaimed shell admin.
	if user.HasCredentials() {
		return ErrNotBootstrapEligible
	}
	roles, err := s.roles.RolesForUser(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("bootstrap claim roles: %w", err)
	}
	isAdmin := false
	for _, r := range roles {
		if r.Name == RoleAdmin {
			isAdmin = true
		}
	}
	if !isAdmin {
		return ErrNotBootstrapEligible
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.SetCredentials(ctx, user.ID, passwordHash, &email, &displayName); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrEmailTaken
		}
		return fmt.Errorf("claim shell admin: %w", err)
	}
	if err := s.authTokens.Consume(ctx, token.ID, now); err != nil {
		return fmt.Errorf("consume bootstrap token: %w", err)
	}

	s.invalidateUser(user.ID)
	s.recordAudit(ctx, &user.ID, models.AuditBootstrapClaimed, nil, nil, nil)
	s.log.Info().Str("user_id", user.ID).Msg("bootstrap claimed")
	return nil
}
