package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/customer-import/pkg/batch/adapter/database"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// migratorImpl runs golang-migrate against the pool of one DBConnection.
type migratorImpl struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator creates a Migrator for dbConn.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &migratorImpl{
		dbConn: dbConn,
		dbType: dbConn.Type(),
	}
}

func (m *migratorImpl) getDatabaseDriver(sqlDB *sql.DB, tableName string) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *migratorImpl) getMigrateInstance(migrationFS fs.FS, path string, tableName string) (*migrate.Migrate, source.Driver, error) {
	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sourceDriver, err := iofs.New(migrationFS, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create iofs source driver for path %s: %w", path, err)
	}

	dbDriver, err := m.getDatabaseDriver(sqlDB, tableName)
	if err != nil {
		_ = sourceDriver.Close()
		return nil, nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	mInstance, err := migrate.NewWithInstance("iofs", sourceDriver, m.dbType, dbDriver)
	if err != nil {
		_ = sourceDriver.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return mInstance, sourceDriver, nil
}

func (m *migratorImpl) runMigration(ctx context.Context, migrationFS fs.FS, path string, command string, tableName string) error {
	logger.Infof("Executing migration '%s' (DB: %s, Path: %s, Table: %s)", command, m.dbConn.Name(), path, tableName)

	mInstance, sourceDriver, err := m.getMigrateInstance(migrationFS, path, tableName)
	if err != nil {
		return err
	}
	defer func() {
		// The sqlite driver closes the shared *sql.DB on Close, so only its source is released here.
		var closeErr error
		if m.dbType == "sqlite" {
			closeErr = sourceDriver.Close()
		} else {
			srcErr, dbErr := mInstance.Close()
			closeErr = multierror.Append(nil, srcErr, dbErr).ErrorOrNil()
		}
		if closeErr != nil {
			logger.Warnf("Failed to release migration resources: %v", closeErr)
		}
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mInstance.GracefulStop <- true
		case <-done:
		}
	}()

	var migrateErr error
	switch command {
	case "up":
		migrateErr = mInstance.Up()
	case "down":
		migrateErr = mInstance.Down()
	default:
		return fmt.Errorf("unsupported migration command: %s", command)
	}

	if migrateErr != nil && !errors.Is(migrateErr, migrate.ErrNoChange) {
		if version, dirty, versionErr := mInstance.Version(); versionErr == nil {
			logger.Errorf("Migration '%s' failed at version %d (dirty: %t)", command, version, dirty)
		}
		return fmt.Errorf("migration failed for command '%s' (DB: %s, Path: %s): %w", command, m.dbType, path, migrateErr)
	}

	logger.Infof("Migration '%s' completed successfully.", command)
	return nil
}

func (m *migratorImpl) Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.runMigration(ctx, migrationFS, path, "up", tableName)
}

func (m *migratorImpl) Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.runMigration(ctx, migrationFS, path, "down", tableName)
}
