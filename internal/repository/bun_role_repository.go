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

// BunRoleRepository implements RoleRepository using Bun ORM
type BunRoleRepository struct {
	db *bun.DB
}

// NewBunRoleRepository creates a new Bun-based role repository
func NewBunRoleRepository(db *bun.DB) *BunRoleRepository {
	return &BunRoleRepository{db: db}
}

// Ensure inserts the role if it does not exist and returns the stored row
func (r *BunRoleRepository) Ensure(ctx context.Context, name, description string) (*models.Role, error) {
	role := &models.Role{
		ID:          bunx.NewUUIDv7(),
		Name:        name,
		Description: description,
	}
	_, err := r.db.NewInsert().
		Model(role).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("ensure role %s: %w", name, err)
	}
	return r.GetByName(ctx, name)
}

// GetByName retrieves a role by its unique name
func (r *BunRoleRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	role := new(models.Role)
	err := r.db.NewSelect().
		Model(role).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// GetByNames retrieves the roles matching the given names; missing names are
// simply absent from the result, the caller decides whether that is an error
func (r *BunRoleRepository) GetByNames(ctx context.Context, names []string) ([]models.Role, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var roles []models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Where("name IN (?)", bun.In(names)).
		Order("name").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("get roles by name: %w", err)
	}
	return roles, nil
}

// ListWithPermissions returns every role with its permission set and the
// number of users holding it
func (r *BunRoleRepository) ListWithPermissions(ctx context.Context) ([]models.Role, error) {
	var roles []models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Order("name").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}

	type rolePermRow struct {
		RoleID string `bun:"role_id"`
		models.Permission
	}
	var permRows []rolePermRow
	err = r.db.NewSelect().
		TableExpr("role_permissions AS rp").
		ColumnExpr("rp.role_id, p.id, p.code, p.description, p.created_at").
		Join("JOIN permissions AS p ON p.id = rp.permission_id").
		OrderExpr("p.code").
		Scan(ctx, &permRows)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	permsByRole := make(map[string][]*models.Permission, len(roles))
	for i := range permRows {
		perm := permRows[i].Permission
		permsByRole[permRows[i].RoleID] = append(permsByRole[permRows[i].RoleID], &perm)
	}

	type roleCountRow struct {
		RoleID string `bun:"role_id"`
		Count  int    `bun:"users_count"`
	}
	var countRows []roleCountRow
	err = r.db.NewSelect().
		TableExpr("user_roles").
		ColumnExpr("role_id, COUNT(*) AS users_count").
		GroupExpr("role_id").
		Scan(ctx, &countRows)
	if err != nil {
		return nil, fmt.Errorf("count role users: %w", err)
	}
	countByRole := make(map[string]int, len(countRows))
	for _, row := range countRows {
		countByRole[row.RoleID] = row.Count
	}

	for i := range roles {
		roles[i].Permissions = permsByRole[roles[i].ID]
		roles[i].UsersCount = countByRole[roles[i].ID]
	}
	return roles, nil
}

// RolesForUser returns the user's roles sorted by name
func (r *BunRoleRepository) RolesForUser(ctx context.Context, userID string) ([]*models.Role, error) {
	var roles []*models.Role
	err := r.db.NewSelect().
		Model(&roles).
		Join("JOIN user_roles AS ur ON ur.role_id = r.id").
		Where("ur.user_id = ?", userID).
		Order("name").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("roles for user: %w", err)
	}
	return roles, nil
}

// Assign grants the role to the user; assigning an already-held role is a no-op
func (r *BunRoleRepository) Assign(ctx context.Context, userID, roleID string) error {
	edge := &models.UserRole{UserID: userID, RoleID: roleID}
	_, err := r.db.NewInsert().
		Model(edge).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// ReplaceUserRoles swaps the user's role set atomically. Membership rules
// (at least one role, last-admin floor) are enforced by the caller.
func (r *BunRoleRepository) ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.UserRole)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("clear user roles: %w", err)
		}

		edges := make([]models.UserRole, 0, len(roleIDs))
		for _, roleID := range roleIDs {
			edges = append(edges, models.UserRole{UserID: userID, RoleID: roleID})
		}
		if len(edges) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&edges).Exec(ctx); err != nil {
			return fmt.Errorf("insert user roles: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace user roles: %w", err)
	}
	return nil
}

// ReplaceRolePermissions swaps the role's permission set atomically
func (r *BunRoleRepository) ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.RolePermission)(nil)).
			Where("role_id = ?", roleID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("clear role permissions: %w", err)
		}

		edges := make([]models.RolePermission, 0, len(permissionIDs))
		for _, permID := range permissionIDs {
			edges = append(edges, models.RolePermission{RoleID: roleID, PermissionID: permID})
		}
		if len(edges) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&edges).Exec(ctx); err != nil {
			return fmt.Errorf("insert role permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace role permissions: %w", err)
	}
	return nil
}
