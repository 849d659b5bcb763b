// Package migrations embeds the forward SQL migrations applied at startup.
package migrations

import "embed"

// FS holds every *.up.sql file in this directory.
//
//go:embed *.up.sql
var FS embed.FS
