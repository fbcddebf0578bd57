package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		strategy TEXT NOT NULL,
		target TEXT NOT NULL,
		log_dir TEXT NOT NULL,
		thread_count INTEGER NOT NULL,
		process_count INTEGER NOT NULL,
		time_scale REAL NOT NULL,
		run_time_ms INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
	`CREATE TABLE IF NOT EXISTS run_results (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		worker TEXT NOT NULL,
		max_sleep_val REAL NOT NULL,
		retry_ratio REAL NOT NULL,
		request_count INTEGER NOT NULL,
		PRIMARY KEY (run_id, worker)
	);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	// Added after the first schema; older databases lack it.
	if err := s.ensureColumn(ctx, "runs", "error", "TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *Store) ensureColumn(ctx context.Context, table, column, columnDef string) error {
	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("inspect %s schema: %w", table, err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return fmt.Errorf("inspect %s columns: %w", table, err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect %s columns: %w", table, err)
	}

	if _, err := s.DB.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, columnDef)); err != nil {
		return fmt.Errorf("add %s.%s column: %w", table, column, err)
	}

	return nil
}
