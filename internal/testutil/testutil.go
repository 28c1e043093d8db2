// Package testutil provides shared test helpers for setting up libraries and databases.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/bibtidy/internal/storage"
	"github.com/starford/bibtidy/internal/store"
)

// Sample is a small bibliography used across package tests.
const Sample = `% sample library
@comment{exported by hand}
@article{knuth74,
  title   = {Computer Programming as an Art},
  author  = {Donald E. Knuth},
  journal = {Communications of the ACM},
  year    = {1974},
}
@inproceedings{lamport78, title = "Time, Clocks, and the Ordering of Events", author = {Leslie Lamport}, booktitle = {CACM}, year = {1978}}
`

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "bibtidy-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary library directory with a storage provider.
func TestLibrary(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// Logger returns a logger that discards everything below error level.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
