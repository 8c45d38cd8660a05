// Package statstore is the durable store for scraped domain statistics.
//
// It owns four concerns: the deduplicated per-day stat rows (one row per
// account×domain×day, upsert-on-conflict), the scrape-session audit trail,
// per-account usage tracking, and worker heartbeats. All operations run on
// short-lived connections from the database/sql pool so a stalled worker
// can never pin a connection across cycle steps.
//
// Store errors are reported, not escalated: callers treat a failing store as
// a degraded mode and keep scraping; snapshot documents still capture the
// data.
package statstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Store wraps the scraper database.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the SQLite database at path with the production
// pragmas applied and the schema ensured. Parent directories are created.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("statstore: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("statstore: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("statstore: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("statstore: apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("statstore: ping: %w", err)
	}

	return &Store{DB: db}, nil
}

// OpenMemory opens an in-memory store for tests. MaxOpenConns is pinned to 1
// so every query hits the same in-memory database, and the store is closed
// via t.Cleanup.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("statstore.OpenMemory: %v", err)
	}
	s.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}
