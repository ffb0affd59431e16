package gorm_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gormadapter "github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
)

type widget struct {
	ID    string `gorm:"column:id;primaryKey"`
	Label string `gorm:"column:label"`
	Count int    `gorm:"column:count"`
}

func (widget) TableName() string { return "widgets" }

func newSQLiteResolver(t *testing.T) (*gormadapter.GormDBConnectionResolver, *config.Config) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Surfin.AdaptorConfigs["workload"] = map[string]interface{}{
		"type":     "sqlite",
		"database": filepath.Join(t.TempDir(), "workload.db"),
	}
	resolver := gormadapter.NewGormDBConnectionResolver(cfg, sqlite.NewProvider(cfg))
	t.Cleanup(func() { _ = resolver.CloseAll() })

	conn, err := resolver.ResolveDBConnection(context.Background(), "workload")
	require.NoError(t, err)
	sqlDB, err := conn.GetSQLDB()
	require.NoError(t, err)
	_, err = sqlDB.Exec(`CREATE TABLE widgets (id TEXT PRIMARY KEY, label TEXT, count INTEGER)`)
	require.NoError(t, err)
	return resolver, cfg
}

func TestResolver_ResolvesConfiguredConnection(t *testing.T) {
	resolver, _ := newSQLiteResolver(t)

	conn, err := resolver.ResolveDBConnection(context.Background(), "workload")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conn.Type())
	assert.Equal(t, "workload", conn.Name())

	again, err := resolver.ResolveConnection(context.Background(), "workload")
	require.NoError(t, err)
	assert.Same(t, conn, again)
}

func TestResolver_UnknownConnection(t *testing.T) {
	resolver, _ := newSQLiteResolver(t)

	_, err := resolver.ResolveDBConnection(context.Background(), "missing")
	assert.Error(t, err)
}

func TestTransactionManager_CommitAndRollback(t *testing.T) {
	resolver, _ := newSQLiteResolver(t)
	ctx := context.Background()
	tm := gormadapter.NewGormTransactionManager(resolver, "workload")
	conn, err := resolver.ResolveDBConnection(ctx, "workload")
	require.NoError(t, err)

	committed, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = committed.ExecuteUpdate(ctx, &widget{ID: "a", Label: "first", Count: 1}, "CREATE", "widgets", nil)
	require.NoError(t, err)
	require.NoError(t, tm.Commit(committed))

	rolledBack, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = rolledBack.ExecuteUpdate(ctx, &widget{ID: "b", Label: "second", Count: 2}, "CREATE", "widgets", nil)
	require.NoError(t, err)
	require.NoError(t, tm.Rollback(rolledBack))

	var rows []widget
	require.NoError(t, conn.ExecuteQuery(ctx, &rows, nil))
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0].ID)
}

func TestTransaction_UpsertUpdatesOnConflict(t *testing.T) {
	resolver, _ := newSQLiteResolver(t)
	ctx := context.Background()
	tm := gormadapter.NewGormTransactionManager(resolver, "workload")

	for _, w := range []widget{{ID: "a", Label: "old", Count: 1}, {ID: "a", Label: "new", Count: 2}} {
		w := w
		tx, err := tm.Begin(ctx)
		require.NoError(t, err)
		_, err = tx.ExecuteUpsert(ctx, &w, "widgets", []string{"id"}, []string{"label", "count"})
		require.NoError(t, err)
		require.NoError(t, tm.Commit(tx))
	}

	conn, err := resolver.ResolveDBConnection(ctx, "workload")
	require.NoError(t, err)
	var rows []widget
	require.NoError(t, conn.ExecuteQuery(ctx, &rows, map[string]interface{}{"id": "a"}))
	require.Len(t, rows, 1)
	assert.Equal(t, "new", rows[0].Label)
	assert.Equal(t, 2, rows[0].Count)

	count, err := conn.Count(ctx, &widget{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestTransaction_SavepointRollback(t *testing.T) {
	resolver, _ := newSQLiteResolver(t)
	ctx := context.Background()
	tm := gormadapter.NewGormTransactionManager(resolver, "workload")

	tx, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.ExecuteUpdate(ctx, &widget{ID: "a"}, "CREATE", "widgets", nil)
	require.NoError(t, err)
	require.NoError(t, tx.Savepoint("sp1"))
	_, err = tx.ExecuteUpdate(ctx, &widget{ID: "b"}, "CREATE", "widgets", nil)
	require.NoError(t, err)
	require.NoError(t, tx.RollbackToSavepoint("sp1"))
	require.NoError(t, tm.Commit(tx))

	conn, err := resolver.ResolveDBConnection(ctx, "workload")
	require.NoError(t, err)
	count, err := conn.Count(ctx, &widget{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestConnection_UpdateWithVersionCondition(t *testing.T) {
	resolver, _ := newSQLiteResolver(t)
	ctx := context.Background()
	conn, err := resolver.ResolveDBConnection(ctx, "workload")
	require.NoError(t, err)

	_, err = conn.ExecuteUpdate(ctx, &widget{ID: "a", Label: "v0", Count: 0}, "CREATE", "widgets", nil)
	require.NoError(t, err)

	rows, err := conn.ExecuteUpdate(ctx, &widget{ID: "a", Label: "v1", Count: 1}, "UPDATE", "widgets", map[string]interface{}{"count": 0})
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	rows, err = conn.ExecuteUpdate(ctx, &widget{ID: "a", Label: "stale", Count: 1}, "UPDATE", "widgets", map[string]interface{}{"count": 0})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}

func TestConnection_IsTableNotExistError(t *testing.T) {
	resolver, _ := newSQLiteResolver(t)
	ctx := context.Background()
	conn, err := resolver.ResolveDBConnection(ctx, "workload")
	require.NoError(t, err)

	sqlDB, err := conn.GetSQLDB()
	require.NoError(t, err)
	_, queryErr := sqlDB.Query(`SELECT * FROM nowhere`)
	require.Error(t, queryErr)
	assert.True(t, conn.IsTableNotExistError(queryErr))
	assert.False(t, conn.IsTableNotExistError(errors.New("connection refused")))
}
