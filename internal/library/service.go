// Package library owns the ordered list of bibliography records: importing
// text into it, editing and re-typing records, selection, deletion and
// export. Every mutation re-lints the affected records and persists them.
package library

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/bibtidy/internal/apperr"
	"github.com/starford/bibtidy/internal/bibtex"
	"github.com/starford/bibtidy/internal/checksum"
	"github.com/starford/bibtidy/internal/store"
)

// Event kinds passed to an EventFunc.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
	EventCleared = "cleared"

	// EventSourceRemoved carries the removed file path instead of IDs.
	EventSourceRemoved = "source_removed"
)

// EventFunc is called after a successful mutation with the affected IDs.
type EventFunc func(kind string, ids ...string)

// Item is a stored record as seen by callers.
type Item struct {
	ID        string        `json:"id"`
	ETag      string        `json:"etag"`
	Source    string        `json:"source,omitempty"`
	Record    bibtex.Record `json:"record"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Filter narrows List.
type Filter = store.ListFilter

// Service coordinates the record pipeline and the store.
type Service struct {
	db           store.RecordStore
	logger       *slog.Logger
	notify       EventFunc
	newID        func() string
	now          func() time.Time
	exportPrefix string

	// mu serializes read-modify-write sequences on the shared list.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithNotifier registers a callback for record events.
func WithNotifier(fn EventFunc) Option {
	return func(s *Service) { s.notify = fn }
}

// WithExportPrefix sets the prefix of generated export filenames.
func WithExportPrefix(prefix string) Option {
	return func(s *Service) {
		if prefix != "" {
			s.exportPrefix = prefix
		}
	}
}

// WithClock overrides the time source used for export names and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a library service over db.
func NewService(db store.RecordStore, opts ...Option) *Service {
	s := &Service{
		db:           db,
		logger:       slog.Default(),
		newID:        uuid.NewString,
		now:          time.Now,
		exportPrefix: "export",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) emit(kind string, ids ...string) {
	if s.notify != nil {
		s.notify(kind, ids...)
	}
}

// ETag is the checksum of a record's serialized form.
func ETag(r bibtex.Record) string {
	text, err := bibtex.SerializeOne(r)
	if err != nil {
		return ""
	}
	return checksum.SumString(text)
}

func (s *Service) newRow(r bibtex.Record) store.RecordRow {
	return store.RecordRow{
		ID:        s.newID(),
		Record:    r,
		Checksum:  ETag(r),
		UpdatedAt: s.now().UTC(),
	}
}

func toItem(r store.RecordRow) Item {
	return Item{
		ID:        r.ID,
		ETag:      r.Checksum,
		Source:    r.Source,
		Record:    r.Record,
		UpdatedAt: r.UpdatedAt,
	}
}

func toItems(rows []store.RecordRow) []Item {
	out := make([]Item, len(rows))
	for i, r := range rows {
		out[i] = toItem(r)
	}
	return out
}

func rowIDs(rows []store.RecordRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

// Import parses text, lints every record and puts the batch at the top of
// the list in file order. A syntax error anywhere rejects the whole text;
// text without records yields apperr.ErrEmptyImport.
func (s *Service) Import(ctx context.Context, name, text string) ([]Item, error) {
	recs, err := bibtex.ParseAndLint(text)
	if err != nil {
		return nil, fmt.Errorf("library: import %s: %w", name, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("library: import %s: %w", name, apperr.ErrEmptyImport)
	}

	rows := make([]store.RecordRow, len(recs))
	for i, r := range recs {
		rows[i] = s.newRow(r)
	}
	if err := s.db.InsertTop(ctx, rows); err != nil {
		return nil, fmt.Errorf("library: import %s: %w", name, err)
	}
	s.logger.Info("library: imported", slog.String("name", name), slog.Int("records", len(rows)))
	s.emit(EventCreated, rowIDs(rows)...)
	return toItems(rows), nil
}

// ImportSource replaces the records that came from the file at path with
// the records in data. A file that fails to parse leaves the library as it
// was. Dropped records are announced as deleted before the new ones.
func (s *Service) ImportSource(ctx context.Context, path string, data []byte) (int, error) {
	recs, err := bibtex.ParseAndLint(string(data))
	if err != nil {
		return 0, fmt.Errorf("library: import source %s: %w", path, err)
	}
	rows := make([]store.RecordRow, len(recs))
	for i, r := range recs {
		rows[i] = s.newRow(r)
	}
	src := store.SourceRow{Path: path, Checksum: checksum.Sum(data), ImportedAt: s.now().UTC()}
	replaced, err := s.db.ReplaceSource(ctx, src, rows)
	if err != nil {
		return 0, fmt.Errorf("library: import source %s: %w", path, err)
	}
	if len(replaced) > 0 {
		s.emit(EventDeleted, replaced...)
	}
	if len(rows) > 0 {
		s.emit(EventCreated, rowIDs(rows)...)
	}
	return len(rows), nil
}

// RemoveSource drops a file's records.
func (s *Service) RemoveSource(ctx context.Context, path string) (int, error) {
	n, err := s.db.DeleteSource(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("library: remove source %s: %w", path, err)
	}
	if n > 0 {
		s.emit(EventSourceRemoved, path)
	}
	return n, nil
}

// SourceChecksums returns the checksum recorded for every imported file.
func (s *Service) SourceChecksums(ctx context.Context) (map[string]string, error) {
	return s.db.SourceChecksums(ctx)
}

// Sources lists the imported files.
func (s *Service) Sources(ctx context.Context) ([]store.SourceRow, error) {
	return s.db.Sources(ctx)
}

// List returns records in display order and the total matching count.
func (s *Service) List(ctx context.Context, f Filter) ([]Item, int, error) {
	rows, total, err := s.db.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return toItems(rows), total, nil
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	row, err := s.db.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	it := toItem(*row)
	return &it, nil
}

// isNil also catches a typed nil held in the Record interface.
func isNil(rec bibtex.Record) bool {
	switch r := rec.(type) {
	case nil:
		return true
	case *bibtex.Entry:
		return r == nil
	case *bibtex.Preamble:
		return r == nil
	case *bibtex.Comment:
		return r == nil
	}
	return false
}

// Search finds records whose type, cite key or field values contain q.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]Item, error) {
	rows, err := s.db.Search(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	return toItems(rows), nil
}

// Add lints rec and puts it at the top. A nil rec adds an empty article.
func (s *Service) Add(ctx context.Context, rec bibtex.Record) (*Item, error) {
	if isNil(rec) {
		rec = bibtex.NewEntry("article", "")
	}
	row := s.newRow(bibtex.Lint(rec))
	if err := s.db.InsertTop(ctx, []store.RecordRow{row}); err != nil {
		return nil, fmt.Errorf("library: add: %w", err)
	}
	s.emit(EventCreated, row.ID)
	it := toItem(row)
	return &it, nil
}

// Update replaces a record with rec after clearing its warnings and linting
// it again. A non-empty ifMatch must equal the current ETag.
func (s *Service) Update(ctx context.Context, id string, rec bibtex.Record, ifMatch string) (*Item, error) {
	if isNil(rec) {
		return nil, fmt.Errorf("library: update %s: %w", id, bibtex.ErrInvalidRecord)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.db.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != cur.Checksum {
		return nil, apperr.ErrConflict
	}
	if e, ok := rec.(*bibtex.Entry); ok {
		e = bibtex.Clone(e).(*bibtex.Entry)
		e.Warnings = nil
		rec = e
	}
	return s.replace(ctx, cur, bibtex.Lint(rec))
}

// Retype converts a record to another type; see bibtex.Retype.
func (s *Service) Retype(ctx context.Context, id, newType string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.db.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := bibtex.Retype(cur.Record, newType)
	if err != nil {
		return nil, fmt.Errorf("library: retype %s: %w", id, err)
	}
	return s.replace(ctx, cur, rec)
}

func (s *Service) replace(ctx context.Context, cur *store.RecordRow, rec bibtex.Record) (*Item, error) {
	row := store.RecordRow{
		ID:        cur.ID,
		Source:    cur.Source,
		Record:    rec,
		Checksum:  ETag(rec),
		UpdatedAt: s.now().UTC(),
	}
	if err := s.db.Put(ctx, row); err != nil {
		return nil, fmt.Errorf("library: update %s: %w", cur.ID, err)
	}
	s.emit(EventUpdated, row.ID)
	it := toItem(row)
	return &it, nil
}

// SetSelected sets the selection flag on ids, or on every record when ids
// is empty. It reports how many records changed.
func (s *Service) SetSelected(ctx context.Context, ids []string, selected bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.resolve(ctx, ids)
	if err != nil {
		return 0, err
	}
	var changed []store.RecordRow
	for _, r := range rows {
		if r.Record.UIFlags().Selected == selected {
			continue
		}
		r.Record.UIFlags().Selected = selected
		r.UpdatedAt = s.now().UTC()
		changed = append(changed, r)
	}
	if len(changed) == 0 {
		return 0, nil
	}
	if err := s.db.Put(ctx, changed...); err != nil {
		return 0, fmt.Errorf("library: select: %w", err)
	}
	s.emit(EventUpdated, rowIDs(changed)...)
	return len(changed), nil
}

// ProtectCapitals brace-protects capitals in the given entries, or in the
// selected entries when ids is empty. Preambles and comments are skipped.
func (s *Service) ProtectCapitals(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []store.RecordRow
	var err error
	if len(ids) == 0 {
		yes := true
		rows, _, err = s.db.List(ctx, store.ListFilter{Selected: &yes})
	} else {
		rows, err = s.resolve(ctx, ids)
	}
	if err != nil {
		return 0, err
	}

	var changed []store.RecordRow
	for _, r := range rows {
		e, ok := r.Record.(*bibtex.Entry)
		if !ok {
			continue
		}
		p := bibtex.ProtectEntry(e)
		if p.Fields.Equal(e.Fields) {
			continue
		}
		r.Record = p
		r.Checksum = ETag(p)
		r.UpdatedAt = s.now().UTC()
		changed = append(changed, r)
	}
	if len(changed) == 0 {
		return 0, nil
	}
	if err := s.db.Put(ctx, changed...); err != nil {
		return 0, fmt.Errorf("library: protect: %w", err)
	}
	s.emit(EventUpdated, rowIDs(changed)...)
	return len(changed), nil
}

// resolve loads ids in display order, or every record when ids is empty.
func (s *Service) resolve(ctx context.Context, ids []string) ([]store.RecordRow, error) {
	if len(ids) == 0 {
		rows, _, err := s.db.List(ctx, store.ListFilter{})
		return rows, err
	}
	out := make([]store.RecordRow, 0, len(ids))
	for _, id := range ids {
		r, err := s.db.Get(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b store.RecordRow) int { return cmp.Compare(a.Position, b.Position) })
	return out, nil
}

// Delete removes records and reports how many existed.
func (s *Service) Delete(ctx context.Context, ids []string) (int, error) {
	n, err := s.db.Delete(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("library: delete: %w", err)
	}
	if n > 0 {
		s.emit(EventDeleted, ids...)
	}
	return n, nil
}

// Clear empties the library.
func (s *Service) Clear(ctx context.Context) error {
	if err := s.db.Clear(ctx); err != nil {
		return fmt.Errorf("library: clear: %w", err)
	}
	s.logger.Info("library: cleared")
	s.emit(EventCleared)
	return nil
}
