package migrations

import "github.com/uptrace/bun/migrate"

// Migrations holds the schema steps; each file named <version>_<comment>.go registers one.
var Migrations = migrate.NewMigrations()
