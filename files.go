package auth

import (
	"embed"
)

//go:embed data/sql/migrations/*.sql
var migrationsFS embed.FS

// MigrationsDir is the path of the SQL migrations inside GetMigrationsFS
const MigrationsDir = "data/sql/migrations"

// GetMigrationsFS returns the goose migrations for the account schema
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
