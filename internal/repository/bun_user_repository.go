package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/uptrace/bun"
)

// BunUserRepository implements UserRepository using Bun ORM
type BunUserRepository struct {
	db *bun.DB
}

// NewBunUserRepository creates a new Bun-based user repository
func NewBunUserRepository(db *bun.DB) *BunUserRepository {
	return &BunUserRepository{db: db}
}

// Create inserts a new user. Duplicate emails surface as ErrConflict.
func (r *BunUserRepository) Create(ctx context.Context, user *models.User) error {
	_, err := r.db.NewInsert().
		Model(user).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *BunUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("u.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetByNormalizedEmail retrieves a user by the lowercased-trimmed email
func (r *BunUserRepository) GetByNormalizedEmail(ctx context.Context, emailNormalized string) (*models.User, error) {
	user := new(models.User)
	err := r.db.NewSelect().
		Model(user).
		Where("email_normalized = ?", emailNormalized).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// ListWithRoles returns every user with its roles populated, newest first
func (r *BunUserRepository) ListWithRoles(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.NewSelect().
		Model(&users).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	type userRoleRow struct {
		UserID string `bun:"user_id"`
		models.Role
	}
	var rows []userRoleRow
	err = r.db.NewSelect().
		TableExpr("user_roles AS ur").
		ColumnExpr("ur.user_id, r.id, r.name, r.description, r.created_at").
		Join("JOIN roles AS r ON r.id = ur.role_id").
		OrderExpr("r.name").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}

	rolesByUser := make(map[string][]*models.Role, len(users))
	for i := range rows {
		role := rows[i].Role
		rolesByUser[rows[i].UserID] = append(rolesByUser[rows[i].UserID], &role)
	}
	for i := range users {
		users[i].Roles = rolesByUser[users[i].ID]
	}
	return users, nil
}

// Delete removes a user; sessions, tokens and role edges cascade away
func (r *BunUserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.NewDelete().
		Model((*models.User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCredentials stores a password hash, optionally rewrites the email and
// display name, marks the email verified and clears the lockout counters.
// Email and emailNormalized move together.
func (r *BunUserRepository) SetCredentials(ctx context.Context, id string, passwordHash string, email, displayName *string) error {
	now := time.Now().UTC()
	q := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("email_verified_at = ?", now).
		Set("failed_login_count = 0").
		Set("locked_until = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", id)

	if email != nil {
		q = q.Set("email = ?", *email).
			Set("email_normalized = ?", models.NormalizeEmail(*email))
	}
	if displayName != nil {
		q = q.Set("display_name = ?", *displayName)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("set credentials: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordLoginSuccess stamps the login and resets the failure counters
func (r *BunUserRepository) RecordLoginSuccess(ctx context.Context, id string, ip *string, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("last_login_at = ?", at).
		Set("last_login_ip = ?", ip).
		Set("failed_login_count = 0").
		Set("locked_until = NULL").
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}
	return nil
}

// RecordLoginFailure bumps the failure counter
func (r *BunUserRepository) RecordLoginFailure(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*models.User)(nil)).
		Set("failed_login_count = failed_login_count + 1").
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	return nil
}

// HasCredentialedAdmin reports whether any user outside excludeUserIDs holds
// the admin role with a non-null password hash. This is the last-admin floor:
// role changes and deletions that would leave zero credentialed admins are
// rejected by callers based on this check.
func (r *BunUserRepository) HasCredentialedAdmin(ctx context.Context, excludeUserIDs ...string) (bool, error) {
	q := r.db.NewSelect().
		Model((*models.User)(nil)).
		Join("JOIN user_roles AS ur ON ur.user_id = u.id").
		Join("JOIN roles AS r ON r.id = ur.role_id").
		Where("r.name = ?", "admin").
		Where("u.password_hash IS NOT NULL").
		Where("u.is_disabled = ?", false)

	if len(excludeUserIDs) > 0 {
		q = q.Where("u.id NOT IN (?)", bun.In(excludeUserIDs))
	}

	count, err := q.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count credentialed admins: %w", err)
	}
	return count > 0, nil
}
