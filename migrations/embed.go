// Package migrations embeds the SQL schema applied at startup.
package migrations

import "embed"

// FS holds every NNN_name.sql migration in version order.
//
//go:embed *.sql
var FS embed.FS
