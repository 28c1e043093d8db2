package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/bibtidy/internal/apperr"
	"github.com/starford/bibtidy/internal/bibtex"
)

// RecordRow is one stored record in display order.
type RecordRow struct {
	ID        string
	Position  int64
	Source    string
	Checksum  string
	Record    bibtex.Record
	UpdatedAt time.Time
}

// ListFilter narrows List. Zero values match everything; Limit <= 0 means
// no limit.
type ListFilter struct {
	Type     string
	Selected *bool
	Limit    int
	Offset   int
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectColumns = `SELECT id, position, source, checksum, data, updated_at FROM records`

// InsertTop inserts rows ahead of every existing record, keeping their order.
func (db *DB) InsertTop(ctx context.Context, rows []RecordRow) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := insertTop(ctx, tx, rows); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTop(ctx context.Context, tx execer, rows []RecordRow) error {
	if len(rows) == 0 {
		return nil
	}
	var top sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MIN(position) FROM records`).Scan(&top); err != nil {
		return fmt.Errorf("store: min position: %w", err)
	}
	start := int64(0)
	if top.Valid {
		start = top.Int64 - int64(len(rows))
	}
	for i := range rows {
		rows[i].Position = start + int64(i)
		if err := upsert(ctx, tx, rows[i]); err != nil {
			return err
		}
	}
	return nil
}

// Put replaces existing rows by ID, keeping each row's position.
func (db *DB) Put(ctx context.Context, rows ...RecordRow) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range rows {
		var pos int64
		err := tx.QueryRowContext(ctx, `SELECT position FROM records WHERE id = ?`, r.ID).Scan(&pos)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("store: put %s: %w", r.ID, apperr.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("store: put %s: %w", r.ID, err)
		}
		r.Position = pos
		if err := upsert(ctx, tx, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsert(ctx context.Context, tx execer, r RecordRow) error {
	if r.Record == nil {
		return fmt.Errorf("store: upsert %s: %w", r.ID, bibtex.ErrInvalidRecord)
	}
	data, err := json.Marshal(r.Record)
	if err != nil {
		return fmt.Errorf("store: encode record: %w", err)
	}
	citeKey := ""
	if e, ok := r.Record.(*bibtex.Entry); ok {
		citeKey = e.CiteKey
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (id, position, type, cite_key, selected, data, search, source, checksum, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			position   = excluded.position,
			type       = excluded.type,
			cite_key   = excluded.cite_key,
			selected   = excluded.selected,
			data       = excluded.data,
			search     = excluded.search,
			source     = excluded.source,
			checksum   = excluded.checksum,
			updated_at = excluded.updated_at
	`, r.ID, r.Position, r.Record.RecordType(), citeKey, r.Record.UIFlags().Selected,
		string(data), searchText(r.Record), r.Source, r.Checksum, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert record: %w", err)
	}
	return nil
}

// searchText flattens the searchable content of a record to lower case.
func searchText(r bibtex.Record) string {
	parts := []string{r.RecordType()}
	switch v := r.(type) {
	case *bibtex.Entry:
		parts = append(parts, v.CiteKey)
		for _, f := range v.Fields.Pairs() {
			if f.Value != "" {
				parts = append(parts, f.Value)
			}
		}
	default:
		if s, ok := bibtex.Value(r); ok {
			parts = append(parts, s)
		}
	}
	return strings.ToLower(strings.Join(parts, "\n"))
}

// Get returns one record or apperr.ErrNotFound.
func (db *DB) Get(ctx context.Context, id string) (*RecordRow, error) {
	row := db.conn.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	return r, nil
}

// List returns records in display order and the total matching count.
func (db *DB) List(ctx context.Context, f ListFilter) ([]RecordRow, int, error) {
	var where []string
	var args []any
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.Selected != nil {
		where = append(where, "selected = ?")
		args = append(args, *f.Selected)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := max(f.Offset, 0)
	rows, err := db.conn.QueryContext(ctx,
		selectColumns+cond+` ORDER BY position ASC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list: %w", err)
	}
	out, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Search matches query against record type, cite key and field values,
// case-insensitively.
func (db *DB) Search(ctx context.Context, query string, limit int) ([]RecordRow, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := db.conn.QueryContext(ctx,
		selectColumns+` WHERE search LIKE ? ESCAPE '\' ORDER BY position ASC LIMIT ?`,
		pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	return collect(rows)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Delete removes the given records and reports how many existed.
func (db *DB) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := db.conn.ExecContext(ctx, `DELETE FROM records WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("store: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear removes every record and forgets every source.
func (db *DB) Clear(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("store: clear records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources`); err != nil {
		return fmt.Errorf("store: clear sources: %w", err)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*RecordRow, error) {
	var r RecordRow
	var data string
	if err := s.Scan(&r.ID, &r.Position, &r.Source, &r.Checksum, &data, &r.UpdatedAt); err != nil {
		return nil, err
	}
	rec, err := bibtex.UnmarshalRecord([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("store: decode record %s: %w", r.ID, err)
	}
	r.Record = rec
	return &r, nil
}

func collect(rows *sql.Rows) ([]RecordRow, error) {
	defer rows.Close()
	out := make([]RecordRow, 0)
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
