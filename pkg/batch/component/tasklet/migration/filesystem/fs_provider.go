// Package filesystem embeds the batch metadata migrations, one directory per database type.
package filesystem

import (
	"embed"
	"io/fs"

	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

//go:embed resource
var rawFrameworkMigrationFS embed.FS

// FrameworkMigrationsFS returns the embedded framework migrations rooted at "resource",
// so the directory for a connection is its database type ("sqlite", "mysql", "postgres").
func FrameworkMigrationsFS() fs.FS {
	subFS, err := fs.Sub(rawFrameworkMigrationFS, "resource")
	if err != nil {
		logger.Fatalf("Failed to create subdirectory for framework migration FS: %v", err)
	}
	return subFS
}
