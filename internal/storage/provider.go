// Package storage defines the file-system abstraction over .bib files.
package storage

import "github.com/starford/bibtidy/internal/models"

// Provider is the interface for bibliography file operations. Paths are
// slash-separated and relative to the provider root.
type Provider interface {
	// List returns metadata for every file under dir that matches the
	// provider's include patterns.
	List(dir string) ([]models.SourceMetadata, error)
	// Match reports whether a relative path matches the include patterns.
	Match(path string) bool
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
}
