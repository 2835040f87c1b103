package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/bunx"
	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/GustavPetterssonBjorklund/Statix/internal/migrations"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// setupTestDB opens a private in-memory SQLite database and applies the full
// migration chain. Each test gets its own database name so parallel tests
// never share state.
func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	db, err := bunx.NewDB(dsn, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })

	migrator := migrate.NewMigrator(db, migrations.Migrations)
	ctx := context.Background()
	require.NoError(t, migrator.Init(ctx))
	_, err = migrator.Migrate(ctx)
	require.NoError(t, err)

	return db
}

// createTestNode inserts a node with a fresh ULID and returns it.
func createTestNode(t *testing.T, db *bun.DB, name string) *models.Node {
	t.Helper()

	node := &models.Node{ID: bunx.NewULID()}
	if name != "" {
		node.Name = &name
	}
	require.NoError(t, NewBunNodeRepository(db).Create(context.Background(), node))
	return node
}

// createTestUser inserts a user, optionally credentialed, and returns it.
func createTestUser(t *testing.T, db *bun.DB, email string, passwordHash *string) *models.User {
	t.Helper()

	user := &models.User{
		ID:              bunx.NewUUIDv7(),
		Email:           email,
		EmailNormalized: models.NormalizeEmail(email),
		PasswordHash:    passwordHash,
	}
	require.NoError(t, NewBunUserRepository(db).Create(context.Background(), user))
	return user
}

// assignRole grants roleName to the user, creating the role if needed.
func assignRole(t *testing.T, db *bun.DB, userID, roleName string) *models.Role {
	t.Helper()

	roles := NewBunRoleRepository(db)
	role, err := roles.Ensure(context.Background(), roleName, "")
	require.NoError(t, err)
	require.NoError(t, roles.Assign(context.Background(), userID, role.ID))
	return role
}
