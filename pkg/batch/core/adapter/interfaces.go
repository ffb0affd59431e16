// Package adapter defines what database and storage connections have in common, so the
// job repository and the readers can resolve either by name.
package adapter

import (
	"context"
)

// ResourceConnection is a named, closable connection of some type ("sqlite", "gcs", ...).
type ResourceConnection interface {
	Close() error
	Type() string
	// Name is the key of the connection in the configuration, e.g. "workload".
	Name() string
}

// ResourceConnectionResolver returns the live connection called name, reconnecting if needed.
type ResourceConnectionResolver interface {
	ResolveConnection(ctx context.Context, name string) (ResourceConnection, error)
}
