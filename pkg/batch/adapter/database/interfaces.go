// Package database defines the database connection abstractions shared by the
// job repository, the transaction manager and item writers.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/customer-import/pkg/batch/adapter/database/config"
	coreAdapter "github.com/tigerroll/customer-import/pkg/batch/core/adapter"
)

// DBExecutor defines the read and write operations available on a connection.
type DBExecutor interface {
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)

	// ExecuteQuery loads the rows matching query (column conditions combined with AND) into target.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// ExecuteQueryAdvanced is ExecuteQuery with ordering and a row limit (0 means no limit).
	ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error

	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)
}

// DBConnection is a named, configured database connection.
type DBConnection interface {
	coreAdapter.ResourceConnection
	DBExecutor

	// IsTableNotExistError reports whether err means the queried table is missing.
	IsTableNotExistError(err error) bool
	// RefreshConnection verifies the connection pool is usable.
	RefreshConnection(ctx context.Context) error
	Config() dbconfig.DatabaseConfig
	// GetSQLDB exposes the underlying pool for migrations and raw access.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves named database connections, reconnecting when needed.
type DBConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	GetConnection(name string) (DBConnection, error)
	CloseAll() error
	Type() string
	ForceReconnect(name string) (DBConnection, error)
}
