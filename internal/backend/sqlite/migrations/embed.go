// Package migrations embeds the SQL migration files for the embedded
// backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
