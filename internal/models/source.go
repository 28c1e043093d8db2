// Package models defines the file-level domain types for bibtidy.
package models

import "time"

// SourceMetadata describes a .bib file in the library directory.
type SourceMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
