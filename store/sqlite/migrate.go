package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// =============================================================================
// SCHEMA
// =============================================================================

const schema = `
	-- Single-row profile. Optional columns are added by ensureColumns.
	CREATE TABLE IF NOT EXISTS profile (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		gender TEXT NOT NULL,
		birth_date TEXT NOT NULL,
		majority_date TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One signed counter per category
	CREATE TABLE IF NOT EXISTS debt_counts (
		category TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	-- Absence of a row means pending
	CREATE TABLE IF NOT EXISTS daily_status (
		date TEXT NOT NULL,
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (date, category)
	);

	-- Append-only audit of counter changes
	CREATE TABLE IF NOT EXISTS logs (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		amount INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_logs_category
		ON logs(category);
`

// column is an optional column added to an existing table.
type column struct {
	table string
	name  string
	ddl   string
}

// optionalColumns were introduced after the first schema. Each must carry a
// default so ALTER TABLE can fill existing rows.
var optionalColumns = []column{
	{"profile", "prayer_tracking_start_date", "TEXT NOT NULL DEFAULT ''"},
	{"profile", "fasting_tracking_start_date", "TEXT NOT NULL DEFAULT ''"},
	{"profile", "last_sync_date", "TEXT NOT NULL DEFAULT ''"},
	{"profile", "last_processed_date", "TEXT NOT NULL DEFAULT ''"},
	{"daily_status", "note", "TEXT NOT NULL DEFAULT ''"},
	{"logs", "effective_date", "TEXT NOT NULL DEFAULT ''"},
}

// migrate creates missing tables, then adds missing optional columns.
// Existing data is never dropped.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return ensureColumns(ctx, s.db, optionalColumns)
}

func ensureColumns(ctx context.Context, q querier, cols []column) error {
	existing := make(map[string]map[string]bool)
	for _, c := range cols {
		if _, ok := existing[c.table]; !ok {
			names, err := tableColumns(ctx, q, c.table)
			if err != nil {
				return err
			}
			existing[c.table] = names
		}
		if existing[c.table][c.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.name, c.ddl)
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", c.table, c.name, err)
		}
		existing[c.table][c.name] = true
	}
	return nil
}

func tableColumns(ctx context.Context, q querier, table string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan %s columns: %w", table, err)
		}
		names[name] = true
	}
	return names, rows.Err()
}
