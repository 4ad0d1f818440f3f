// Package migrations embeds the PostgreSQL schema so binaries can migrate without a
// checkout of the repository.
package migrations

import "embed"

// FS holds the golang-migrate up/down files.
//
//go:embed *.sql
var FS embed.FS
