package migration_test

import (
	"context"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormadapter "github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/customer-import/pkg/batch/component/tasklet/migration"
	"github.com/tigerroll/customer-import/pkg/batch/component/tasklet/migration/filesystem"
	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
)

func newSQLiteConfig(t *testing.T) *config.Config {
	cfg := config.NewConfig()
	cfg.Surfin.AdaptorConfigs["metadata"] = map[string]interface{}{
		"type":     "sqlite",
		"database": filepath.Join(t.TempDir(), "metadata.db"),
	}
	return cfg
}

func tableExists(t *testing.T, resolver *gormadapter.GormDBConnectionResolver, table string) bool {
	t.Helper()
	conn, err := resolver.ResolveDBConnection(context.Background(), "metadata")
	require.NoError(t, err)
	sqlDB, err := conn.GetSQLDB()
	require.NoError(t, err)
	var name string
	err = sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
	return err == nil && name == table
}

func TestRunner_AppliesFrameworkMigrations(t *testing.T) {
	cfg := newSQLiteConfig(t)
	provider := sqlite.NewProvider(cfg)
	resolver := gormadapter.NewGormDBConnectionResolver(cfg, provider)
	t.Cleanup(func() { _ = resolver.CloseAll() })

	runner := migration.NewRunner(cfg, provider)
	target := migration.Target{
		DBRef: "metadata",
		FS:    filesystem.FrameworkMigrationsFS(),
		Table: migration.FixedFrameworkMigrationsTable,
	}
	require.NoError(t, runner.Run(context.Background(), target))

	for _, table := range []string{"batch_job_instance", "batch_job_execution", "batch_step_execution", migration.FixedFrameworkMigrationsTable} {
		assert.True(t, tableExists(t, resolver, table), table)
	}

	// A second run finds nothing to do.
	require.NoError(t, runner.Run(context.Background(), target))
}

func TestRunner_SeparateHistoryTables(t *testing.T) {
	cfg := newSQLiteConfig(t)
	provider := sqlite.NewProvider(cfg)
	resolver := gormadapter.NewGormDBConnectionResolver(cfg, provider)
	t.Cleanup(func() { _ = resolver.CloseAll() })

	appFS := fstest.MapFS{
		"sqlite/000001_create_things.up.sql":   {Data: []byte(`CREATE TABLE things (id TEXT PRIMARY KEY);`)},
		"sqlite/000001_create_things.down.sql": {Data: []byte(`DROP TABLE things;`)},
	}
	runner := migration.NewRunner(cfg, provider)
	require.NoError(t, runner.Run(context.Background(),
		migration.Target{DBRef: "metadata", FS: filesystem.FrameworkMigrationsFS(), Table: migration.FixedFrameworkMigrationsTable},
		migration.Target{DBRef: "metadata", FS: appFS, Table: migration.FixedAppMigrationsTable},
	))

	assert.True(t, tableExists(t, resolver, "things"))
	assert.True(t, tableExists(t, resolver, migration.FixedAppMigrationsTable))

	require.NoError(t, runner.Run(context.Background(),
		migration.Target{DBRef: "metadata", FS: appFS, Table: migration.FixedAppMigrationsTable, Command: "down"},
	))
	assert.False(t, tableExists(t, resolver, "things"))
	assert.True(t, tableExists(t, resolver, "batch_job_instance"))
}

func TestRunner_UnknownConnection(t *testing.T) {
	cfg := newSQLiteConfig(t)
	runner := migration.NewRunner(cfg, sqlite.NewProvider(cfg))

	err := runner.Run(context.Background(), migration.Target{DBRef: "nope", FS: filesystem.FrameworkMigrationsFS()})
	assert.Error(t, err)
}
