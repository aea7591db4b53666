// Package db embeds the SQL migrations so binaries and tests share one schema source.
package db

import "embed"

// Migrations holds the golang-migrate files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsPath is the directory inside Migrations passed to the iofs source.
const MigrationsPath = "migrations"
