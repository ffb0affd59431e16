package gorm

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/customer-import/pkg/batch/adapter/database"
	coreAdapter "github.com/tigerroll/customer-import/pkg/batch/core/adapter"
	config "github.com/tigerroll/customer-import/pkg/batch/core/config"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// GormDBConnectionResolver resolves named connections through the provider of their configured type.
type GormDBConnectionResolver struct {
	dbProviders map[string]database.DBProvider // keyed by database type ("sqlite", "mysql", "postgres")
	cfg         *config.Config
}

// NewGormDBConnectionResolver creates a resolver over providers.
func NewGormDBConnectionResolver(cfg *config.Config, providers ...database.DBProvider) *GormDBConnectionResolver {
	providerMap := make(map[string]database.DBProvider, len(providers))
	for _, provider := range providers {
		providerMap[provider.Type()] = provider
	}
	return &GormDBConnectionResolver{
		dbProviders: providerMap,
		cfg:         cfg,
	}
}

// ResolveDBConnection returns the connection called name, reconnecting once if the pool fails a ping.
func (r *GormDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	dbConfig, err := DecodeDatabaseConfig(r.cfg, name)
	if err != nil {
		return nil, fmt.Errorf("DBConnectionResolver: %w", err)
	}

	provider, ok := r.dbProviders[dbConfig.Type]
	if !ok {
		return nil, fmt.Errorf("DBConnectionResolver: DBProvider for type '%s' not found for connection '%s'", dbConfig.Type, name)
	}

	conn, err := provider.GetConnection(name)
	if err != nil {
		return nil, fmt.Errorf("DBConnectionResolver: failed to get connection '%s': %w", name, err)
	}

	if pingErr := conn.RefreshConnection(ctx); pingErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warnf("DBConnectionResolver: Connection '%s' is invalid (%v). Attempting to reconnect.", name, pingErr)
		reconnectedConn, reconnectErr := provider.ForceReconnect(name)
		if reconnectErr != nil {
			return nil, fmt.Errorf("DBConnectionResolver: failed to reconnect connection '%s': %w", name, reconnectErr)
		}
		logger.Infof("DBConnectionResolver: Successfully reconnected connection '%s'.", name)
		return reconnectedConn, nil
	}
	return conn, nil
}

// ResolveConnection implements coreAdapter.ResourceConnectionResolver.
func (r *GormDBConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveDBConnection(ctx, name)
}

// CloseAll closes the connections of every provider.
func (r *GormDBConnectionResolver) CloseAll() error {
	var result *multierror.Error
	for _, provider := range r.dbProviders {
		if err := provider.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

var _ database.DBConnectionResolver = (*GormDBConnectionResolver)(nil)
