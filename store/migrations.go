package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// migration represents a single additive schema migration.
type migration struct {
	version     int
	description string
	apply       func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations. New
// migrations are appended at the end; never modify existing entries.
var migrations = []migration{
	{
		version:     1,
		description: "initial schema (applied via schemaSQL)",
		apply:       func(tx *sql.Tx) error { return nil },
	},
	{
		version:     2,
		description: "add review_by and domain/workstream to documents",
		apply: func(tx *sql.Tx) error {
			for _, col := range []string{
				"ALTER TABLE documents ADD COLUMN domain TEXT",
				"ALTER TABLE documents ADD COLUMN workstream TEXT",
				"ALTER TABLE documents ADD COLUMN review_by TEXT",
			} {
				if _, err := tx.Exec(col); err != nil {
					slog.Debug("migration 2: column may already exist", "sql", col, "error", err)
				}
			}
			return nil
		},
	},
	{
		version:     3,
		description: "add observation_* columns for observation-typed documents",
		apply: func(tx *sql.Tx) error {
			for _, col := range []string{
				"ALTER TABLE documents ADD COLUMN observation_type TEXT",
				"ALTER TABLE documents ADD COLUMN observation_facts JSON",
				"ALTER TABLE documents ADD COLUMN observation_narrative TEXT",
				"ALTER TABLE documents ADD COLUMN observation_concepts JSON",
			} {
				if _, err := tx.Exec(col); err != nil {
					slog.Debug("migration 3: column may already exist", "sql", col, "error", err)
				}
			}
			return nil
		},
	},
	{
		version:     4,
		description: "add llm_cache table for expand_query/rerank caching",
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS llm_cache (
				cache_key TEXT PRIMARY KEY,
				operation TEXT NOT NULL,
				value JSON NOT NULL,
				created_at DATETIME DEFAULT CURRENT_TIMESTAMP
			)`)
			return err
		},
	},
}

// Migrate runs all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		slog.Info("applying migration", "version", m.version, "description", m.description)

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version, description) VALUES (?, ?)",
			m.version, m.description); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}
