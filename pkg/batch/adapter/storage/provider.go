package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	storageConfig "github.com/tigerroll/customer-import/pkg/batch/adapter/storage/config"
	coreAdapter "github.com/tigerroll/customer-import/pkg/batch/core/adapter"
	"github.com/tigerroll/customer-import/pkg/batch/core/config"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

// DecodeStorageConfig decodes the storage connection named name from cfg.
func DecodeStorageConfig(cfg *config.Config, name string) (storageConfig.StorageConfig, error) {
	var storageCfg storageConfig.StorageConfig

	raw, ok := cfg.Surfin.StorageConfigs[name]
	if !ok {
		return storageCfg, fmt.Errorf("storage configuration for '%s' not found", name)
	}
	properties, ok := raw.(map[string]interface{})
	if !ok {
		return storageCfg, fmt.Errorf("invalid storage configuration for '%s': expected a map, got %T", name, raw)
	}
	if err := configbinder.BindProperties(properties, &storageCfg); err != nil {
		return storageCfg, fmt.Errorf("failed to decode storage configuration for '%s': %w", name, err)
	}
	return storageCfg, nil
}

// ConnectionFactory opens a connection for a decoded configuration.
type ConnectionFactory func(cfg storageConfig.StorageConfig, name string) (StorageConnection, error)

// BaseProvider caches the connections of one storage type and opens them through a ConnectionFactory.
type BaseProvider struct {
	cfg          *config.Config
	providerType string
	factory      ConnectionFactory
	connections  map[string]StorageConnection
	mu           sync.RWMutex
}

// NewBaseProvider creates a provider for providerType.
func NewBaseProvider(cfg *config.Config, providerType string, factory ConnectionFactory) *BaseProvider {
	return &BaseProvider{
		cfg:          cfg,
		providerType: providerType,
		factory:      factory,
		connections:  make(map[string]StorageConnection),
	}
}

func (p *BaseProvider) Type() string {
	return p.providerType
}

func (p *BaseProvider) GetConnection(name string) (StorageConnection, error) {
	p.mu.RLock()
	conn, ok := p.connections[name]
	p.mu.RUnlock()
	if ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring lock
	if conn, ok := p.connections[name]; ok {
		return conn, nil
	}
	return p.createAndStoreConnection(name)
}

// createAndStoreConnection must be called with p.mu held.
func (p *BaseProvider) createAndStoreConnection(name string) (StorageConnection, error) {
	storageCfg, err := DecodeStorageConfig(p.cfg, name)
	if err != nil {
		return nil, err
	}
	if storageCfg.Type != p.providerType {
		return nil, fmt.Errorf("storage config type mismatch for '%s': expected '%s', got '%s'", name, p.providerType, storageCfg.Type)
	}

	conn, err := p.factory(storageCfg, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage connection '%s': %w", p.providerType, name, err)
	}
	p.connections[name] = conn
	logger.Debugf("Created new %s storage connection '%s'.", p.providerType, name)
	return conn, nil
}

func (p *BaseProvider) ForceReconnect(name string) (StorageConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.connections[name]; ok {
		if err := conn.Close(); err != nil {
			logger.Warnf("Failed to close %s storage connection '%s' during reconnect: %v", p.providerType, name, err)
		}
		delete(p.connections, name)
	}
	return p.createAndStoreConnection(name)
}

func (p *BaseProvider) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result *multierror.Error
	for name, conn := range p.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close %s storage connection '%s': %w", p.providerType, name, err))
		}
		delete(p.connections, name)
	}
	return result.ErrorOrNil()
}

// ConnectionResolver picks the provider for a named connection by its configured type.
type ConnectionResolver struct {
	cfg       *config.Config
	providers map[string]StorageProvider
}

// NewConnectionResolver creates a resolver over providers, keyed by their Type.
func NewConnectionResolver(cfg *config.Config, providers ...StorageProvider) *ConnectionResolver {
	byType := make(map[string]StorageProvider, len(providers))
	for _, p := range providers {
		byType[p.Type()] = p
	}
	return &ConnectionResolver{cfg: cfg, providers: byType}
}

func (r *ConnectionResolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	storageCfg, err := DecodeStorageConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[storageCfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider registered for type '%s' (connection '%s')", storageCfg.Type, name)
	}
	return provider.GetConnection(name)
}

func (r *ConnectionResolver) ResolveConnection(ctx context.Context, name string) (coreAdapter.ResourceConnection, error) {
	return r.ResolveStorageConnection(ctx, name)
}

// CloseAll closes the connections of every provider.
func (r *ConnectionResolver) CloseAll() error {
	var result *multierror.Error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

var _ StorageConnectionResolver = (*ConnectionResolver)(nil)
