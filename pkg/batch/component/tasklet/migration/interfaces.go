// Package migration applies embedded golang-migrate schema migrations to named database connections.
package migration

import (
	"context"
	"io/fs"
)

// Migration history tables. Framework (batch metadata) and application schemas are versioned separately.
const (
	FixedFrameworkMigrationsTable = "batch_framework_migrations"
	FixedAppMigrationsTable       = "batch_app_migrations"
)

// Migrator applies schema migrations from an fs.FS.
type Migrator interface {
	// Up applies all pending migrations found under path.
	// tableName is the table holding the migration history.
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Down rolls back all applied migrations.
	Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
}
