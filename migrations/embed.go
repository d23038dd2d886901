// Package migrations embeds propctl's SQL schema files and registers them
// with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/propctl/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
