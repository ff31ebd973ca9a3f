// Package sqlstore implements storage.Documents on a single SQL table. The
// same code serves PostgreSQL (lib/pq) and SQLite (modernc.org/sqlite); only
// placeholders and column types differ between the two dialects.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"achievements/pkg/platform/sentinel"
)

// Dialect captures the per-driver SQL differences.
type Dialect struct {
	Driver string
	schema string
	load   string
	save   string
}

var (
	Postgres = Dialect{
		Driver: "postgres",
		schema: `
			CREATE TABLE IF NOT EXISTS documents (
				key        TEXT PRIMARY KEY,
				data       TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
		load: `SELECT data FROM documents WHERE key = $1`,
		save: `
			INSERT INTO documents (key, data, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
	}

	SQLite = Dialect{
		Driver: "sqlite",
		schema: `
			CREATE TABLE IF NOT EXISTS documents (
				key        TEXT PRIMARY KEY,
				data       TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
		load: `SELECT data FROM documents WHERE key = ?`,
		save: `
			INSERT INTO documents (key, data, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
	}
)

// Store persists documents in the `documents` table.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an open database and applies the schema. The caller owns db.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if _, err := db.ExecContext(ctx, dialect.schema); err != nil {
		return nil, fmt.Errorf("apply documents schema: %w", err)
	}
	return &Store{db: db, dialect: dialect}, nil
}

// OpenPostgres connects to PostgreSQL and prepares the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open(Postgres.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := New(ctx, db, Postgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenSQLite opens (creating if needed) a SQLite database file.
//
// The database is configured with:
//   - WAL mode so reads do not block the flush
//   - a 5-second busy timeout for lock contention
//   - a single connection, SQLite only supports one writer
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open(SQLite.Driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	s, err := New(ctx, db, SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.dialect.load, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return []byte(data), nil
}

func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, s.dialect.save, key, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save document %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
