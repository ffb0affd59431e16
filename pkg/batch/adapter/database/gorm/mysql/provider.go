// Package mysql registers the MySQL dialector and provides its DBProvider.
package mysql

import (
	"fmt"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/customer-import/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-import/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-import/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-import/pkg/batch/core/config"
)

const dbType = "mysql"

func init() {
	gormadapter.RegisterDialector(dbType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds the go-sql-driver DSN for c. Times are parsed in UTC
// and the connection charset defaults to utf8mb4.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	dsnCfg := driver.NewConfig()
	dsnCfg.User = c.User
	dsnCfg.Passwd = c.Password
	dsnCfg.Net = "tcp"
	port := c.Port
	if port == 0 {
		port = 3306
	}
	dsnCfg.Addr = fmt.Sprintf("%s:%d", c.Host, port)
	dsnCfg.DBName = c.Database
	dsnCfg.ParseTime = true
	dsnCfg.Loc = time.UTC
	dsnCfg.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range c.Params {
		dsnCfg.Params[k] = v
	}
	return dsnCfg.FormatDSN()
}

// MySQLDBProvider implements database.DBProvider for MySQL connections.
type MySQLDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return &MySQLDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, dbType)}
}
