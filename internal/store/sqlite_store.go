package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements FallbackStore on a local SQLite file. All documents
// live in one flat key-value table so the store stays schema-free across
// application modules.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// NewSQLiteStore opens (creating if needed) the fallback database at path.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback db: %w", err)
	}
	// The fallback store is accessed from one client; a single connection
	// avoids SQLITE_BUSY under concurrent goroutine access.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping fallback db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("Opened SQLite fallback store", zap.String("path", path))

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Read retrieves the value stored under key
func (s *SQLiteStore) Read(key string) (interface{}, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM documents WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return value, nil
}

// Write stores value under key, replacing any previous value
func (s *SQLiteStore) Write(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO documents (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting an absent key is not an error
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM documents WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// Keys returns all stored keys for the collection, the listing key included.
func (s *SQLiteStore) Keys(collection string) ([]string, error) {
	// Underscore is a LIKE wildcard, so the separator needs escaping.
	rows, err := s.db.Query(
		`SELECT key FROM documents WHERE key = ? OR key LIKE ? ESCAPE '\' ORDER BY key`,
		collection, collection+`\_%`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys for %q: %w", collection, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Close closes the underlying database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
