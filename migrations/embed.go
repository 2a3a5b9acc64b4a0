// Package migrations embeds the SQLite schema migrations into the binary.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var files embed.FS

// FS returns the embedded migration files, rooted at the migration
// directory, for database.DB.Migrate.
func FS() fs.FS {
	return files
}
