package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schemaVersion = 1

// Store persists key/value pairs in a single SQLite table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS db_version (
		name TEXT PRIMARY KEY,
		version INTEGER
	)`); err != nil {
		return fmt.Errorf("sqlite: create db_version: %w", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM db_version WHERE name = 'calfeed'`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		version = 0
		if _, err := s.db.ExecContext(ctx, `INSERT INTO db_version (name, version) VALUES ('calfeed', 0)`); err != nil {
			return fmt.Errorf("sqlite: init db_version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("sqlite: read db_version: %w", err)
	}

	if version < 1 {
		if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`); err != nil {
			return fmt.Errorf("sqlite: create kv: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE db_version SET version = ? WHERE name = 'calfeed'`, schemaVersion); err != nil {
			return fmt.Errorf("sqlite: update db_version: %w", err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
