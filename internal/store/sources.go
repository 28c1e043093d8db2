package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SourceRow tracks a .bib file whose records live in the store.
type SourceRow struct {
	Path        string    `json:"path"`
	Checksum    string    `json:"checksum"`
	RecordCount int       `json:"record_count"`
	ImportedAt  time.Time `json:"imported_at"`
}

// ReplaceSource swaps the records previously imported from src.Path for rows
// (placed at the top) and records the source checksum, in one transaction.
// It returns the IDs of the records it dropped, in display order.
func (db *DB) ReplaceSource(ctx context.Context, src SourceRow, rows []RecordRow) ([]string, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	replaced, err := sourceIDs(ctx, tx, src.Path)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE source = ?`, src.Path); err != nil {
		return nil, fmt.Errorf("store: drop source records: %w", err)
	}
	for i := range rows {
		rows[i].Source = src.Path
	}
	if err := insertTop(ctx, tx, rows); err != nil {
		return nil, err
	}

	if src.ImportedAt.IsZero() {
		src.ImportedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sources (path, checksum, record_count, imported_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			checksum     = excluded.checksum,
			record_count = excluded.record_count,
			imported_at  = excluded.imported_at
	`, src.Path, src.Checksum, len(rows), src.ImportedAt)
	if err != nil {
		return nil, fmt.Errorf("store: upsert source: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return replaced, nil
}

func sourceIDs(ctx context.Context, tx *sql.Tx, path string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM records WHERE source = ? ORDER BY position ASC`, path)
	if err != nil {
		return nil, fmt.Errorf("store: source ids: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteSource removes a source and its records, returning how many records
// were dropped.
func (db *DB) DeleteSource(ctx context.Context, path string) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE source = ?`, path)
	if err != nil {
		return 0, fmt.Errorf("store: delete source records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE path = ?`, path); err != nil {
		return 0, fmt.Errorf("store: delete source: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), tx.Commit()
}

// SourceChecksums returns path → checksum for every known source.
func (db *DB) SourceChecksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum FROM sources`)
	if err != nil {
		return nil, fmt.Errorf("store: source checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Sources lists known sources ordered by path.
func (db *DB) Sources(ctx context.Context) ([]SourceRow, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum, record_count, imported_at FROM sources ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("store: sources: %w", err)
	}
	defer rows.Close()
	out := make([]SourceRow, 0)
	for rows.Next() {
		var s SourceRow
		if err := rows.Scan(&s.Path, &s.Checksum, &s.RecordCount, &s.ImportedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
