// Package migrations embeds the ledger schema.
package migrations

import (
	"embed"

	"github.com/fernandezvara/opsledger"
)

//go:embed sql/*.sql
var files embed.FS

// All returns the ledger schema migrations in order.
func All() ([]opsledger.Migration, error) {
	return opsledger.LoadMigrations(files, "sql")
}
