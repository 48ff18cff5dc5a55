// Package db embeds the SQL migrations so binaries can migrate on boot.
package db

import "embed"

// Migrations holds the files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsPath is the directory inside Migrations.
const MigrationsPath = "migrations"
