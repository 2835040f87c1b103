package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/bunx"
	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/uptrace/bun"
)

// BunPermissionRepository implements PermissionRepository using Bun ORM
type BunPermissionRepository struct {
	db *bun.DB
}

// NewBunPermissionRepository creates a new Bun-based permission repository
func NewBunPermissionRepository(db *bun.DB) *BunPermissionRepository {
	return &BunPermissionRepository{db: db}
}

// Ensure inserts the permission code if it does not exist and returns the
// stored row. Dynamic per-node codes are provisioned through this on first
// reference.
func (r *BunPermissionRepository) Ensure(ctx context.Context, code, description string) (*models.Permission, error) {
	perm := &models.Permission{
		ID:          bunx.NewUUIDv7(),
		Code:        code,
		Description: description,
	}
	_, err := r.db.NewInsert().
		Model(perm).
		On("CONFLICT (code) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensure permission %s: %w", code, err)
	}

	stored := new(models.Permission)
	err = r.db.NewSelect().
		Model(stored).
		Where("code = ?", code).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return stored, nil
}

// List returns every permission sorted by code
func (r *BunPermissionRepository) List(ctx context.Context) ([]models.Permission, error) {
	var perms []models.Permission
	err := r.db.NewSelect().
		Model(&perms).
		Order("code").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

// GetByCodes retrieves the permissions matching the given codes; missing
// codes are simply absent from the result
func (r *BunPermissionRepository) GetByCodes(ctx context.Context, codes []string) ([]models.Permission, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	var perms []models.Permission
	err := r.db.NewSelect().
		Model(&perms).
		Where("code IN (?)", bun.In(codes)).
		Order("code").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get permissions by code: %w", err)
	}
	return perms, nil
}

// CodesForUser returns the sorted union of permission codes across the
// user's roles
func (r *BunPermissionRepository) CodesForUser(ctx context.Context, userID string) ([]string, error) {
	var codes []string
	err := r.db.NewSelect().
		TableExpr("permissions AS p").
		ColumnExpr("DISTINCT p.code").
		Join("JOIN role_permissions AS rp ON rp.permission_id = p.id").
		Join("JOIN user_roles AS ur ON ur.role_id = rp.role_id").
		Where("ur.user_id = ?", userID).
		OrderExpr("p.code").
		Scan(ctx, &codes)
	if err != nil {
		return nil, fmt.Errorf("permission codes for user: %w", err)
	}
	return codes, nil
}
