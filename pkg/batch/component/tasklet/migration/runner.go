package migration

import (
	"context"
	"io/fs"

	"github.com/tigerroll/customer-import/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm"
	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

const runnerName = "migration_runner"

// Target describes one set of migrations to apply.
type Target struct {
	// DBRef is the database connection the migrations run against.
	DBRef string
	// FS holds the migration scripts.
	FS fs.FS
	// Dir is the directory inside FS. Empty means the connection's database type.
	Dir string
	// Table is the migration history table.
	Table string
	// Command is "up" (default) or "down".
	Command string
}

// Runner applies migration targets in order, using the DBProvider of each connection's type.
type Runner struct {
	cfg         *config.Config
	dbProviders map[string]database.DBProvider
	newMigrator func(database.DBConnection) Migrator
}

// NewRunner creates a Runner over the given providers.
func NewRunner(cfg *config.Config, providers ...database.DBProvider) *Runner {
	providerMap := make(map[string]database.DBProvider, len(providers))
	for _, p := range providers {
		providerMap[p.Type()] = p
	}
	return &Runner{
		cfg:         cfg,
		dbProviders: providerMap,
		newMigrator: NewMigrator,
	}
}

// Run applies targets in order and stops at the first failure.
func (r *Runner) Run(ctx context.Context, targets ...Target) error {
	for _, target := range targets {
		if err := r.runTarget(ctx, target); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runTarget(ctx context.Context, target Target) error {
	dbConfig, err := gormadapter.DecodeDatabaseConfig(r.cfg, target.DBRef)
	if err != nil {
		return exception.NewBatchError(runnerName, "failed to read database configuration", err, false, false)
	}
	provider, ok := r.dbProviders[dbConfig.Type]
	if !ok {
		return exception.NewBatchErrorf(runnerName, "DBProvider for type '%s' not found", dbConfig.Type)
	}

	// Start from a fresh connection; a previous migration may have closed the pool.
	dbConn, err := provider.ForceReconnect(target.DBRef)
	if err != nil {
		return exception.NewBatchError(runnerName, "failed to connect before migration", err, false, false)
	}

	dir := target.Dir
	if dir == "" {
		dir = dbConn.Type()
	}
	command := target.Command
	if command == "" {
		command = "up"
	}
	logger.Infof("Starting database migration for DB connection '%s' (dir: %s, table: %s, command: %s).", target.DBRef, dir, target.Table, command)

	migrator := r.newMigrator(dbConn)
	switch command {
	case "up":
		err = migrator.Up(ctx, target.FS, dir, target.Table)
	case "down":
		err = migrator.Down(ctx, target.FS, dir, target.Table)
	default:
		return exception.NewBatchErrorf(runnerName, "Unknown migration command: %s", command)
	}
	if err != nil {
		return exception.NewBatchError(runnerName, "Migration '"+command+"' failed", err, false, false)
	}

	// The migration driver may have closed the pool; later resolutions must see a live one.
	if _, err := provider.ForceReconnect(target.DBRef); err != nil {
		return exception.NewBatchError(runnerName, "failed to reconnect after migration", err, false, false)
	}
	return nil
}
