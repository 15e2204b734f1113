package store

import (
	"context"
	"database/sql"
	"fmt"

	"dcon/internal/logging"
)

// Migration adds a column that older databases lack.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists the column additions applied on every Open.
var pendingMigrations = []Migration{
	// Image file served for the comic page
	{"comics", "filename", "TEXT NOT NULL DEFAULT ''"},
	// Alt text for the image
	{"comics", "description", "TEXT NOT NULL DEFAULT ''"},
	// Scheduled publishing; unix microseconds, 0 publishes immediately
	{"comics", "publish_at", "INTEGER NOT NULL DEFAULT 0"},
}

// RunMigrations adds any missing columns to existing tables. Tables that do
// not exist are skipped.
func RunMigrations(ctx context.Context, db *sql.DB) (int, error) {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	applied := 0
	for _, m := range pendingMigrations {
		exists, err := tableExists(ctx, db, m.Table)
		if err != nil {
			return applied, err
		}
		if !exists {
			logging.StoreDebug("table missing, skipping migration: %s.%s", m.Table, m.Column)
			continue
		}

		has, err := columnExists(ctx, db, m.Table, m.Column)
		if err != nil {
			return applied, err
		}
		if has {
			continue
		}

		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.ExecContext(ctx, query); err != nil {
			return applied, fmt.Errorf("migration %s.%s failed: %w", m.Table, m.Column, err)
		}
		logging.Store("migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}
	return applied, nil
}

// columnExists checks a table's columns with PRAGMA table_info.
func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return count > 0, nil
}
