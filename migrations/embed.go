// Package migrations embeds the engine's schema migrations so the
// binary carries them and database.RunMigrations can apply them from
// any working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
