// Package storage defines the interfaces shared by the object storage adapters.
// Connections are named in the "storage" configuration section and resolved by name,
// the same way database connections are.
package storage

import (
	"context"
	"io"

	coreAdapter "github.com/tigerroll/customer-import/pkg/batch/core/adapter"
)

// StorageExecutor defines generic object storage operations.
type StorageExecutor interface {
	// Upload writes data to objectName in bucket. An empty bucket means the configured default.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download opens objectName for reading. The caller closes the returned reader.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object under prefix.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject removes objectName. Deleting a missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// StorageConnection is a named connection to an object store.
type StorageConnection interface {
	coreAdapter.ResourceConnection
	StorageExecutor
}

// StorageProvider creates and caches the connections of one storage type.
type StorageProvider interface {
	// GetConnection returns the connection named name, creating it on first use.
	GetConnection(name string) (StorageConnection, error)
	// CloseAll closes every connection created by this provider.
	CloseAll() error
	// Type returns the storage type handled by this provider (e.g. "local", "gcs").
	Type() string
	// ForceReconnect closes the named connection and creates it again.
	ForceReconnect(name string) (StorageConnection, error)
}

// StorageConnectionResolver resolves a StorageConnection by name.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver

	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}
