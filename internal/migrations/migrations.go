// Package migrations embeds the golang-migrate SQL files for the service schema.
package migrations

import "embed"

// FS holds the numbered up/down migration files at its root.
//
//go:embed *.sql
var FS embed.FS
