// Package resources embeds the default configuration and the customers table migrations.
package resources

import (
	"embed"
	"io/fs"
)

// ApplicationYAML is the configuration compiled into the binary.
//
//go:embed application.yaml
var ApplicationYAML []byte

//go:embed migrations
var migrationsFS embed.FS

// MigrationsFS returns the application migrations rooted at "migrations",
// one directory per database type.
func MigrationsFS() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}
