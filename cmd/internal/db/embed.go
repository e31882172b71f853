// Package db owns the Postgres schema: embedded migrations, the migration
// runner, pool construction and the transaction helper shared by the stores.
package db

import "embed"

// MigrationFS embeds the SQL migrations applied by Migrate and by kpauthctl.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
