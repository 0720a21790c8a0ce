package accounts

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store persists user records and trusted devices. It only ever stores what
// RegisterUser returns; key material never reaches this layer.
type Store struct {
	sql  *sql.DB
	path string
}

// Open initialises a SQLite database at the given path and returns a Store.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open accounts database: %w", err)
	}

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping accounts database: %w", err)
	}

	if err := ensurePerm0600(path); err != nil {
		handle.Close()
		return nil, err
	}

	s := &Store{sql: handle, path: path}
	if err := s.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

// ensurePerm0600 restricts the database file to its owner on Unix systems.
func ensurePerm0600(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chmod database: %w", err)
	}
	return nil
}

const createAccountTables = `
CREATE TABLE IF NOT EXISTS users (
	email      TEXT PRIMARY KEY,
	auth_hash  TEXT    NOT NULL,
	auth_salt  BLOB    NOT NULL,
	enc_salt   BLOB    NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trusted_devices (
	id       TEXT PRIMARY KEY,
	email    TEXT NOT NULL REFERENCES users(email) ON DELETE CASCADE,
	name     TEXT NOT NULL,
	added_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trusted_devices_email ON trusted_devices(email);
`

func (s *Store) migrate() error {
	if _, err := s.sql.Exec(createAccountTables); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
