// Package watch keeps the library in step with the .bib files under the
// library directory, both at startup and while the server runs.
package watch

import (
	"context"
	"log/slog"

	"github.com/starford/bibtidy/internal/checksum"
	"github.com/starford/bibtidy/internal/storage"
)

// Library is the part of the library service the watcher drives.
type Library interface {
	ImportSource(ctx context.Context, path string, data []byte) (int, error)
	RemoveSource(ctx context.Context, path string) (int, error)
	SourceChecksums(ctx context.Context) (map[string]string, error)
}

// Sync walks the library directory and brings the stored records up to date:
//   - new/changed files are parsed and their records replaced
//   - files removed from disk have their records dropped
func Sync(ctx context.Context, lib Library, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}
	checksums, err := lib.SourceChecksums(ctx)
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}
		if checksums[m.Path] == m.Checksum {
			continue
		}
		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		n, err := lib.ImportSource(ctx, m.Path, data)
		if err != nil {
			logger.Warn("sync: import failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: imported", slog.String("path", m.Path), slog.Int("records", n))
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if _, err := lib.RemoveSource(ctx, p); err != nil {
			logger.Warn("sync: remove failed", slog.String("path", p), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}
	return nil
}

// importFile re-imports path unless its content matches what was imported
// last time. It reports whether anything changed.
func importFile(ctx context.Context, lib Library, store storage.Provider, path string) (bool, error) {
	data, err := store.Read(path)
	if err != nil {
		return false, err
	}
	known, err := lib.SourceChecksums(ctx)
	if err != nil {
		return false, err
	}
	if checksum.Unchanged(known[path], data) {
		return false, nil
	}
	if _, err := lib.ImportSource(ctx, path, data); err != nil {
		return false, err
	}
	return true, nil
}
