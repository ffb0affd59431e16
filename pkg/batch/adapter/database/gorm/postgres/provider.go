// Package postgres registers the PostgreSQL dialector and provides its DBProvider.
package postgres

import (
	"fmt"
	"sort"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tigerroll/customer-import/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-import/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-import/pkg/batch/core/config"
)

const dbType = "postgres"

func init() {
	gormadapter.RegisterDialector(dbType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return postgres.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds the key/value DSN for c.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, port, c.User, c.Password, c.Database, sslmode)
	if c.Schema != "" {
		dsn += " search_path=" + c.Schema
	}
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var extra strings.Builder
	for _, k := range keys {
		extra.WriteString(" " + k + "=" + c.Params[k])
	}
	return dsn + extra.String()
}

// PostgresDBProvider implements database.DBProvider for PostgreSQL connections.
type PostgresDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the PostgreSQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &PostgresDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, dbType)}
}
