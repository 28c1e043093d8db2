// Package store provides SQLite-backed persistence for library records and
// the .bib sources they were imported from.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	position   INTEGER NOT NULL,
	type       TEXT NOT NULL,
	cite_key   TEXT NOT NULL DEFAULT '',
	selected   INTEGER NOT NULL DEFAULT 0,
	data       TEXT NOT NULL,
	search     TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_records_position ON records(position);
CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);
CREATE INDEX IF NOT EXISTS idx_records_type ON records(type);

CREATE TABLE IF NOT EXISTS sources (
	path         TEXT PRIMARY KEY,
	checksum     TEXT NOT NULL DEFAULT '',
	record_count INTEGER NOT NULL DEFAULT 0,
	imported_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// RecordStore is the persistence contract the library service depends on.
// Consumers should depend on this interface rather than the concrete *DB.
type RecordStore interface {
	InsertTop(ctx context.Context, rows []RecordRow) error
	Put(ctx context.Context, rows ...RecordRow) error
	Get(ctx context.Context, id string) (*RecordRow, error)
	List(ctx context.Context, f ListFilter) ([]RecordRow, int, error)
	Search(ctx context.Context, query string, limit int) ([]RecordRow, error)
	Delete(ctx context.Context, ids []string) (int, error)
	Clear(ctx context.Context) error
	ReplaceSource(ctx context.Context, src SourceRow, rows []RecordRow) ([]string, error)
	DeleteSource(ctx context.Context, path string) (int, error)
	SourceChecksums(ctx context.Context) (map[string]string, error)
	Sources(ctx context.Context) ([]SourceRow, error)
	Close() error
}

// Verify *DB satisfies RecordStore at compile time.
var _ RecordStore = (*DB)(nil)

// DB wraps a sql.DB with record-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
