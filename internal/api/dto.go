package api

import (
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bibtidy/internal/bibtex"
	"github.com/starford/bibtidy/internal/library"
)

// RetypeRequest is the request body for changing a record's type.
type RetypeRequest struct {
	Type string `json:"type" example:"book" validate:"required"`
}

// Validate checks that Type names a record variant or a known entry type.
func (r RetypeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, validation.Required, validation.In(knownTypes()...)),
	)
}

func knownTypes() []any {
	types := bibtex.AllTypes()
	out := make([]any, len(types))
	for i, t := range types {
		out[i] = t
	}
	return out
}

// SelectRequest sets the selection flag. Empty IDs selects or clears all.
type SelectRequest struct {
	IDs      []string `json:"ids"`
	Selected bool     `json:"selected"`
}

// Validate rejects blank IDs.
func (r SelectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs, validation.Each(validation.Required)),
	)
}

// IDsRequest names a batch of records.
type IDsRequest struct {
	IDs []string `json:"ids" validate:"required"`
}

// Validate requires at least one non-blank ID.
func (r IDsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs, validation.Required, validation.Each(validation.Required)),
	)
}

// ProtectRequest names the entries to protect; empty means the selection.
type ProtectRequest struct {
	IDs []string `json:"ids"`
}

// Validate rejects blank IDs.
func (r ProtectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDs, validation.Each(validation.Required)),
	)
}

// RecordItem is a stored record (aliased from the domain layer).
type RecordItem = library.Item

// RecordListResponse wraps paginated record listings.
type RecordListResponse struct {
	Records []RecordItem `json:"records" validate:"required"`
	Total   int          `json:"total" example:"42" validate:"required"`
}

// CountResponse reports how many records an operation touched.
type CountResponse struct {
	Count int `json:"count" example:"3" validate:"required"`
}

// RecordsResponse wraps records returned by the stateless pipeline calls.
type RecordsResponse struct {
	Records []bibtex.Record `json:"records" validate:"required"`
}

// SchemaResponse lists the entry-type table in canonical order.
type SchemaResponse struct {
	Types    []bibtex.NamedSchema `json:"types" validate:"required"`
	Optional []string             `json:"optional" validate:"required"`
}

// SourceDTO is an imported .bib file.
type SourceDTO struct {
	Path        string    `json:"path" example:"refs/main.bib"`
	Checksum    string    `json:"checksum" example:"abc123..."`
	RecordCount int       `json:"record_count" example:"12"`
	ImportedAt  time.Time `json:"imported_at"`
}

// decodeRecord decodes the JSON form of a record; an empty body yields nil.
func decodeRecord(body []byte) (bibtex.Record, error) {
	if len(body) == 0 || string(body) == "null" {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, bibtex.ErrInvalidRecord
	}
	return bibtex.UnmarshalRecord(body)
}
