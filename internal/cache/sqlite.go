// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const dbFile = "call-cache.db"

// SQLiteStore is the slow-path cache tier backed by a local SQLite
// database. Eviction beyond TTL is left to CleanupExpired; the database
// has no size bound of its own.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the cache database at dir/call-cache.db,
// creating the schema if it does not exist.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_entries_expires ON entries(expires_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the unexpired value for key. Expired rows are deleted on
// read and reported absent.
func (s *SQLiteStore) Get(key string, now time.Time) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRow(`SELECT value, expires_at FROM entries WHERE key = ?`, key).
		Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}

	if now.Unix() >= expiresAt {
		s.db.Exec(`DELETE FROM entries WHERE key = ?`, key)
		return nil, false, nil
	}
	return value, true, nil
}

// Set upserts value under key with the given expiry instant.
func (s *SQLiteStore) Set(key string, value []byte, expiresAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt.Unix())
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// CleanupExpired deletes rows whose expiry precedes now.
func (s *SQLiteStore) CleanupExpired(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM entries WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("cleaning cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Len returns the total number of rows.
func (s *SQLiteStore) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache entries: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
