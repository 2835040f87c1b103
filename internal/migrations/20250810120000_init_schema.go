package migrations

import (
	"context"
	"fmt"

	"github.com/GustavPetterssonBjorklund/Statix/internal/db/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(up_20250810120000, down_20250810120000)
}

// up_20250810120000 creates the full schema: identity tables, node tables and
// the audit log. Foreign keys are declared inline so the same migration runs
// on both PostgreSQL and SQLite.
func up_20250810120000(ctx context.Context, db *bun.DB) error {
	// 1. users
	fmt.Print(" [up] creating users table...")
	_, err := db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}
	fmt.Println(" OK")

	// 2. roles
	fmt.Print(" [up] creating roles table...")
	_, err = db.NewCreateTable().
		Model((*models.Role)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create roles table: %w", err)
	}
	fmt.Println(" OK")

	// 3. permissions
	fmt.Print(" [up] creating permissions table...")
	_, err = db.NewCreateTable().
		Model((*models.Permission)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create permissions table: %w", err)
	}
	fmt.Println(" OK")

	// 4. user_roles. Role side is RESTRICT: deleting a role that is still
	// assigned would orphan users into zero roles.
	fmt.Print(" [up] creating user_roles table...")
	_, err = db.NewCreateTable().
		Model((*models.UserRole)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		ForeignKey(`("role_id") REFERENCES "roles" ("id") ON DELETE RESTRICT`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create user_roles table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_user_roles_role_id ON user_roles(role_id)`)
	if err != nil {
		return fmt.Errorf("failed to create user_roles role_id index: %w", err)
	}
	fmt.Println(" OK")

	// 5. role_permissions
	fmt.Print(" [up] creating role_permissions table...")
	_, err = db.NewCreateTable().
		Model((*models.RolePermission)(nil)).
		IfNotExists().
		ForeignKey(`("role_id") REFERENCES "roles" ("id") ON DELETE CASCADE`).
		ForeignKey(`("permission_id") REFERENCES "permissions" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create role_permissions table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_role_permissions_permission_id ON role_permissions(permission_id)`)
	if err != nil {
		return fmt.Errorf("failed to create role_permissions permission_id index: %w", err)
	}
	fmt.Println(" OK")

	// 6. sessions
	fmt.Print(" [up] creating sessions table...")
	_, err = db.NewCreateTable().
		Model((*models.Session)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions user_id index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions expires_at index: %w", err)
	}
	fmt.Println(" OK")

	// 7. auth_tokens
	fmt.Print(" [up] creating auth_tokens table...")
	_, err = db.NewCreateTable().
		Model((*models.AuthToken)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create auth_tokens table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_auth_tokens_user_type ON auth_tokens(user_id, type)`)
	if err != nil {
		return fmt.Errorf("failed to create auth_tokens user/type index: %w", err)
	}
	fmt.Println(" OK")

	// 8. audit_logs. User FK is SET NULL so history survives user deletion.
	fmt.Print(" [up] creating audit_logs table...")
	_, err = db.NewCreateTable().
		Model((*models.AuditLog)(nil)).
		IfNotExists().
		ForeignKey(`("user_id") REFERENCES "users" ("id") ON DELETE SET NULL`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create audit_logs table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id)`)
	if err != nil {
		return fmt.Errorf("failed to create audit_logs user_id index: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create audit_logs created_at index: %w", err)
	}
	fmt.Println(" OK")

	// 9. nodes
	fmt.Print(" [up] creating nodes table...")
	_, err = db.NewCreateTable().
		Model((*models.Node)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create nodes table: %w", err)
	}
	fmt.Println(" OK")

	// 10. metrics
	fmt.Print(" [up] creating metrics table...")
	_, err = db.NewCreateTable().
		Model((*models.Metric)(nil)).
		IfNotExists().
		ForeignKey(`("node_id") REFERENCES "nodes" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create metrics table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_metrics_node_ts ON metrics(node_id, ts)`)
	if err != nil {
		return fmt.Errorf("failed to create metrics node/ts index: %w", err)
	}
	fmt.Println(" OK")

	// 11. node_system_info
	fmt.Print(" [up] creating node_system_info table...")
	_, err = db.NewCreateTable().
		Model((*models.NodeSystemInfo)(nil)).
		IfNotExists().
		ForeignKey(`("node_id") REFERENCES "nodes" ("id") ON DELETE CASCADE`).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create node_system_info table: %w", err)
	}
	fmt.Println(" OK")

	return nil
}

// down_20250810120000 drops all tables in reverse dependency order
func down_20250810120000(ctx context.Context, db *bun.DB) error {
	tables := []string{
		"node_system_info",
		"metrics",
		"nodes",
		"audit_logs",
		"auth_tokens",
		"sessions",
		"role_permissions",
		"user_roles",
		"permissions",
		"roles",
		"users",
	}

	for _, table := range tables {
		fmt.Printf(" [down] dropping %s table...", table)
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
		if IsPostgreSQL(db) {
			stmt += " CASCADE"
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to drop %s table: %w", table, err)
		}
		fmt.Println(" OK")
	}

	return nil
}
