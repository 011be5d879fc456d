package database

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies the embedded SQL files in name order inside one transaction.
// Every statement is idempotent so this runs on each start.
func (db *DB) Migrate(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	return db.InTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			content, err := migrationFiles.ReadFile("migrations/" + e.Name())
			if err != nil {
				return fmt.Errorf("read migration %s: %w", e.Name(), err)
			}
			stmt := strings.TrimSpace(string(content))
			if stmt == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("exec migration %s: %w", e.Name(), err)
			}
			log.Debug().Str("migration", e.Name()).Msg("migration applied")
		}
		return nil
	})
}
