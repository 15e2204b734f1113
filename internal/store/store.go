// Package store persists comic timelines in SQLite.
//
// Every timeline mutation runs as one read-compute-write cycle: the store
// takes its mutex, opens a transaction, loads the universe's snapshot, asks
// the timeline engine for a plan, and writes the plan before committing. That
// serialization is what the engine requires of its callers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"dcon/internal/logging"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a comic ID does not exist.
var ErrNotFound = errors.New("comic not found")

const schema = `
CREATE TABLE IF NOT EXISTS comics (
	id TEXT PRIMARY KEY,
	universe TEXT NOT NULL,
	title TEXT NOT NULL,
	comment TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_comics_universe_position ON comics(universe, position);
`

// Store is a SQLite-backed comic timeline.
type Store struct {
	db     *sql.DB
	driver string
	path   string
	mu     sync.Mutex
}

// Open opens (creating if needed) the database at path using driver, which
// is "sqlite3" for mattn/go-sqlite3 or "sqlite" for modernc.org/sqlite.
func Open(ctx context.Context, driver, path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			logging.StoreDebug("%s failed: %v", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("opened %s database at %s", driver, path)
	return &Store{db: db, driver: driver, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	logging.StoreDebug("closing %s", s.path)
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

// withTx runs fn inside a transaction while holding the store mutex.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
