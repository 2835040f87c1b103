// Package migrations holds versioned schema migrations registered with bun.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the collection all migration files register into via init().
var Migrations = migrate.NewMigrations()
