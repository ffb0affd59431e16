// Package sqlite registers the SQLite dialector and provides its DBProvider.
package sqlite

import (
	"errors"
	"sort"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/customer-import/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-import/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-import/pkg/batch/core/config"
)

const dbType = "sqlite"

func init() {
	gormadapter.RegisterDialector(dbType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		if cfg.Database == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(ConnectionString(cfg)), nil
	})
	// SQLite allows a single writer; one pooled connection serializes chunk transactions
	// instead of failing them with SQLITE_BUSY.
	gormadapter.RegisterPoolDefaults(dbType, func(pool *dbconfig.PoolConfig) {
		if pool.MaxOpenConns == 0 {
			pool.MaxOpenConns = 1
		}
	})
}

// ConnectionString returns the DSN for c. A plain file path gets a busy timeout and WAL journaling;
// paths that already carry parameters, and in-memory databases, are used as is.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	dsn := c.Database
	if strings.Contains(dsn, "?") || strings.Contains(dsn, ":memory:") {
		return dsn
	}
	params := []string{"_busy_timeout=5000", "_journal_mode=WAL"}
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params = append(params, k+"="+c.Params[k])
	}
	return dsn + "?" + strings.Join(params, "&")
}

// SQLiteDBProvider implements database.DBProvider for SQLite connections.
type SQLiteDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the SQLite DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &SQLiteDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, dbType)}
}
