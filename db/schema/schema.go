// Package schema embeds the run store migrations.
//
// Files follow the golang-migrate naming scheme NNN_description.up.sql /
// NNN_description.down.sql and are written in the subset of SQL shared by
// SQLite and PostgreSQL.
package schema

import "embed"

// FS holds every migration file.
//
//go:embed *.sql
var FS embed.FS
