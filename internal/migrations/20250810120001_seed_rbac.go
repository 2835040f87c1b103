package migrations

import (
	"context"
	"fmt"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/bunx"
	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20250810120001, down_20250810120001)
}

var seedRoles = []models.Role{
	{Name: "admin", Description: "Full fleet administration"},
	{Name: "user", Description: "Standard dashboard access"},
}

var seedPermissions = []models.Permission{
	{Code: "health:read", Description: "Read service health"},
	{Code: "nodes:read", Description: "List nodes and read their metrics"},
	{Code: "nodes:create", Description: "Register new nodes"},
	{Code: "nodes:delete", Description: "Delete nodes"},
	{Code: "users:create", Description: "Create users"},
	{Code: "users:read", Description: "List users"},
	{Code: "roles:assign", Description: "Manage roles and assignments"},
	{Code: "auth:me", Description: "Read own identity"},
}

// Grants for the non-admin seed role. The admin role gets every seeded code.
var userRoleGrants = []string{"health:read", "nodes:read", "auth:me"}

// up_20250810120001 seeds the reserved roles, the static permission codes and
// their grants. Idempotent: conflicts are skipped and grants re-derived from
// whatever rows exist.
func up_20250810120001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [up] seeding roles...")
	for _, role := range seedRoles {
		role.ID = bunx.NewUUIDv7()
		_, err := db.NewInsert().
			Model(&role).
			On("CONFLICT (name) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed role %s: %w", role.Name, err)
		}
	}
	fmt.Println(" OK")

	fmt.Print(" [up] seeding permissions...")
	for _, perm := range seedPermissions {
		perm.ID = bunx.NewUUIDv7()
		_, err := db.NewInsert().
			Model(&perm).
			On("CONFLICT (code) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", perm.Code, err)
		}
	}
	fmt.Println(" OK")

	fmt.Print(" [up] granting permissions to seed roles...")

	var roles []models.Role
	if err := db.NewSelect().Model(&roles).Scan(ctx); err != nil {
		return fmt.Errorf("failed to load seeded roles: %w", err)
	}
	roleIDs := make(map[string]string, len(roles))
	for _, r := range roles {
		roleIDs[r.Name] = r.ID
	}

	var perms []models.Permission
	if err := db.NewSelect().Model(&perms).Scan(ctx); err != nil {
		return fmt.Errorf("failed to load seeded permissions: %w", err)
	}
	permIDs := make(map[string]string, len(perms))
	for _, p := range perms {
		permIDs[p.Code] = p.ID
	}

	var grants []models.RolePermission
	for _, p := range seedPermissions {
		grants = append(grants, models.RolePermission{
			RoleID:       roleIDs["admin"],
			PermissionID: permIDs[p.Code],
		})
	}
	for _, code := range userRoleGrants {
		grants = append(grants, models.RolePermission{
			RoleID:       roleIDs["user"],
			PermissionID: permIDs[code],
		})
	}

	_, err := db.NewInsert().
		Model(&grants).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed role permissions: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20250810120001 removes seeded data
func down_20250810120001(ctx context.Context, db *bun.DB) error {
	fmt.Print(" [down] removing seeded roles and permissions...")

	roleNames := make([]string, 0, len(seedRoles))
	for _, r := range seedRoles {
		roleNames = append(roleNames, r.Name)
	}
	permCodes := make([]string, 0, len(seedPermissions))
	for _, p := range seedPermissions {
		permCodes = append(permCodes, p.Code)
	}

	_, err := db.NewDelete().
		Model((*models.RolePermission)(nil)).
		Where("role_id IN (SELECT id FROM roles WHERE name IN (?))", bun.In(roleNames)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove seeded grants: %w", err)
	}

	_, err = db.NewDelete().
		Model((*models.Role)(nil)).
		Where("name IN (?)", bun.In(roleNames)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove seeded roles: %w", err)
	}

	_, err = db.NewDelete().
		Model((*models.Permission)(nil)).
		Where("code IN (?)", bun.In(permCodes)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove seeded permissions: %w", err)
	}
	fmt.Println(" OK")

	return nil
}
