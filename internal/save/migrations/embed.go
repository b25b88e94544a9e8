package migrations

import "embed"

// FS contains the embedded SQLite save-store migrations.
//
//go:embed *.sql
var FS embed.FS
