package db

import "embed"

// EmbedMigrations contains the goose migrations for the table store schema.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
