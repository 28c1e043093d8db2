package library_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/bibtidy/internal/apperr"
	"github.com/starford/bibtidy/internal/bibtex"
	"github.com/starford/bibtidy/internal/library"
	"github.com/starford/bibtidy/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) notify(kind string, ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf("%s:%d", kind, len(ids)))
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

func newService(t *testing.T) (*library.Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	svc := library.NewService(testutil.TestDB(t),
		library.WithLogger(testutil.Logger()),
		library.WithNotifier(rec.notify),
		library.WithClock(func() time.Time { return fixedNow }),
	)
	return svc, rec
}

func citeKeys(items []library.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if e, ok := it.Record.(*bibtex.Entry); ok {
			out = append(out, e.CiteKey)
		} else {
			out = append(out, it.Record.RecordType())
		}
	}
	return out
}

func TestImportPrependsBatchInFileOrder(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, "first.bib", `@misc{old, title = {Old}}`)
	require.NoError(t, err)
	items, err := svc.Import(ctx, "sample.bib", testutil.Sample)
	require.NoError(t, err)
	require.Len(t, items, 3)

	list, total, err := svc.List(ctx, library.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"comment", "knuth74", "lamport78", "old"}, citeKeys(list))
	assert.Equal(t, []string{"created:1", "created:3"}, rec.all())

	for _, it := range list {
		assert.Equal(t, library.ETag(it.Record), it.ETag)
	}
}

func TestImportLintsRecords(t *testing.T) {
	svc, _ := newService(t)
	items, err := svc.Import(context.Background(), "x.bib", `@artcle{k, title = {T}}`)
	require.NoError(t, err)

	e := items[0].Record.(*bibtex.Entry)
	assert.Equal(t, "article", e.Type)
	require.NotEmpty(t, e.Warnings)
	assert.True(t, strings.HasPrefix(e.Warnings[0], bibtex.WarnTypeChanged))
}

func TestImportRejectsBadText(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, "empty.bib", "just prose, no records")
	assert.ErrorIs(t, err, apperr.ErrEmptyImport)

	_, err = svc.Import(ctx, "broken.bib", "@misc{ok, title = {x}}\n@misc{bad, title = {unterminated")
	var syn *bibtex.SyntaxError
	assert.ErrorAs(t, err, &syn)

	_, total, err := svc.List(ctx, library.Filter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rec.all())
}

func TestAddDefaultsToEmptyArticle(t *testing.T) {
	svc, _ := newService(t)
	it, err := svc.Add(context.Background(), nil)
	require.NoError(t, err)

	e, ok := it.Record.(*bibtex.Entry)
	require.True(t, ok)
	assert.Equal(t, "article", e.Type)
	assert.Contains(t, e.Warnings, bibtex.WarnMissingCiteKey)
	assert.True(t, e.Fields.Has("title"), "required fields are laid out")
}

func TestUpdateChecksETag(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	it, err := svc.Add(ctx, bibtex.NewEntry("misc", "k"))
	require.NoError(t, err)

	edited := bibtex.NewEntry("misc", "k")
	edited.Fields.Set("title", "New")
	edited.Warnings = []string{"stale warning"}

	_, err = svc.Update(ctx, it.ID, edited, "not-the-etag")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	got, err := svc.Update(ctx, it.ID, edited, it.ETag)
	require.NoError(t, err)
	assert.NotEqual(t, it.ETag, got.ETag)
	assert.NotContains(t, got.Record.(*bibtex.Entry).Warnings, "stale warning")
	assert.Len(t, edited.Warnings, 1, "caller's record is left alone")

	_, err = svc.Update(ctx, "missing", edited, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, []string{"created:1", "updated:1"}, rec.all())
}

func TestTypedNilRecords(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	var nilEntry *bibtex.Entry
	it, err := svc.Add(ctx, nilEntry)
	require.NoError(t, err)
	assert.Equal(t, "article", it.Record.RecordType(), "typed nil adds the default entry")

	assert.NotPanics(t, func() {
		_, err = svc.Update(ctx, it.ID, nilEntry, "")
	})
	assert.ErrorIs(t, err, bibtex.ErrInvalidRecord)

	var nilComment *bibtex.Comment
	_, err = svc.Update(ctx, it.ID, nilComment, "")
	assert.ErrorIs(t, err, bibtex.ErrInvalidRecord)
	assert.Equal(t, []string{"created:1"}, rec.all())
}

func TestRetypeKeepsPosition(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	items, err := svc.Import(ctx, "s.bib", testutil.Sample)
	require.NoError(t, err)

	got, err := svc.Retype(ctx, items[1].ID, "book")
	require.NoError(t, err)
	e := got.Record.(*bibtex.Entry)
	assert.Equal(t, "book", e.Type)
	assert.Equal(t, "knuth74", e.CiteKey)
	assert.Equal(t, "Computer Programming as an Art", e.Fields.Value("title"))

	list, _, _ := svc.List(ctx, library.Filter{})
	assert.Equal(t, []string{"comment", "knuth74", "lamport78"}, citeKeys(list))
}

func TestSelectionAndProtect(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	items, err := svc.Import(ctx, "s.bib", testutil.Sample)
	require.NoError(t, err)

	n, err := svc.SetSelected(ctx, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = svc.SetSelected(ctx, []string{items[0].ID, items[2].ID}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	yes := true
	sel, total, err := svc.List(ctx, library.Filter{Selected: &yes})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, items[1].ID, sel[0].ID)
	assert.Equal(t, items[1].ETag, sel[0].ETag, "selection does not change the etag")

	n, err = svc.ProtectCapitals(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.Get(ctx, items[1].ID)
	require.NoError(t, err)
	e := got.Record.(*bibtex.Entry)
	assert.Equal(t, "{C}omputer {P}rogramming as an {A}rt", e.Fields.Value("title"))
	assert.Equal(t, "Donald E. Knuth", e.Fields.Value("author"))
	assert.True(t, e.Selected)

	other, _ := svc.Get(ctx, items[2].ID)
	assert.Equal(t, "Time, Clocks, and the Ordering of Events", other.Record.(*bibtex.Entry).Fields.Value("title"))
}

func TestDeleteAndClear(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()
	items, err := svc.Import(ctx, "s.bib", testutil.Sample)
	require.NoError(t, err)

	n, err := svc.Delete(ctx, []string{items[0].ID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Get(ctx, items[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, svc.Clear(ctx))
	_, total, _ := svc.List(ctx, library.Filter{})
	assert.Zero(t, total)
	assert.Equal(t, []string{"created:3", "deleted:2", "cleared:0"}, rec.all())
}

func TestSearch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Import(ctx, "s.bib", testutil.Sample)
	require.NoError(t, err)

	got, err := svc.Search(ctx, "knuth", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"knuth74"}, citeKeys(got))
}

func TestExport(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	items, err := svc.Import(ctx, "s.bib", `@misc{a, title = {A}}
@misc{b, title = {B}}`)
	require.NoError(t, err)

	out, err := svc.Export(ctx, library.ExportRequest{})
	require.NoError(t, err)
	assert.Equal(t, "export_20240309_140507.bib", out.Filename)
	assert.Equal(t, bibtex.MIMEType, out.MIMEType)
	assert.Equal(t, 2, out.Count)
	assert.True(t, strings.HasPrefix(out.Content, "@misc{a,\ntitle = {A},\n"), out.Content)
	assert.Contains(t, out.Content, "\n}\n@misc{b,\ntitle = {B},\n")

	// requested IDs come back in display order
	out, err = svc.Export(ctx, library.ExportRequest{IDs: []string{items[1].ID, items[0].ID}, Filename: "mine"})
	require.NoError(t, err)
	assert.Equal(t, "mine.bib", out.Filename)
	assert.True(t, strings.HasPrefix(out.Content, "@misc{a,"))

	_, err = svc.SetSelected(ctx, []string{items[1].ID}, true)
	require.NoError(t, err)
	out, err = svc.Export(ctx, library.ExportRequest{SelectedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Count)
	assert.True(t, strings.HasPrefix(out.Content, "@misc{b,"))
}

func TestImportSourceReplacesPreviousRecords(t *testing.T) {
	svc, rec := newService(t)
	ctx := context.Background()

	n, err := svc.ImportSource(ctx, "refs.bib", []byte(testutil.Sample))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = svc.ImportSource(ctx, "refs.bib", []byte(`@misc{only, title = {x}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, _, _ := svc.List(ctx, library.Filter{})
	assert.Equal(t, []string{"only"}, citeKeys(list))
	assert.Equal(t, "refs.bib", list[0].Source)

	_, err = svc.ImportSource(ctx, "refs.bib", []byte(`@misc{broken`))
	assert.Error(t, err)
	list, _, _ = svc.List(ctx, library.Filter{})
	assert.Len(t, list, 1, "a bad file leaves the library alone")

	n, err = svc.RemoveSource(ctx, "refs.bib")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"created:3", "deleted:3", "created:1", "source_removed:1"}, rec.all())
}
