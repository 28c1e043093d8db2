// Package bibtex implements the BibTeX record pipeline: a parser that turns
// text into records, a linter that folds each entry into a known schema and
// annotates it with warnings, and a serializer that writes records back out.
//
// Every function in this package is a pure transformation over its inputs
// and is safe for concurrent use on independent records.
package bibtex

// Variant type names that are not bibliographic entry types.
const (
	TypePreamble = "preamble"
	TypeComment  = "comment"
	TypeUnknown  = "unknown"
)

// Record is one parsed unit of a bibliography file: *Entry, *Preamble or
// *Comment. The set of implementations is closed.
type Record interface {
	// RecordType returns the entry type for entries and "preamble" or
	// "comment" for the simple variants.
	RecordType() string
	// UIFlags exposes the host-owned flags carried by every variant.
	UIFlags() *Flags
	isRecord()
}

// Flags are host-side display flags. The pipeline preserves them and never
// reads them.
type Flags struct {
	Selected bool
	IsOpen   bool
}

// UIFlags returns f itself so embedders satisfy Record.
func (f *Flags) UIFlags() *Flags { return f }

// Entry is a bibliographic reference.
type Entry struct {
	Flags
	Type     string
	CiteKey  string
	Fields   *Fields
	Warnings []string
}

// Preamble holds the raw content of an @preamble block.
type Preamble struct {
	Flags
	Value string
}

// Comment holds the raw content of an @comment block.
type Comment struct {
	Flags
	Value string
}

func (e *Entry) RecordType() string    { return e.Type }
func (p *Preamble) RecordType() string { return TypePreamble }
func (c *Comment) RecordType() string  { return TypeComment }

func (*Entry) isRecord()    {}
func (*Preamble) isRecord() {}
func (*Comment) isRecord()  {}

// NewEntry returns an entry with an empty field mapping.
func NewEntry(typ, citeKey string) *Entry {
	return &Entry{Type: typ, CiteKey: citeKey, Fields: NewFields()}
}

// Clone returns a deep copy of r. Unknown implementations yield nil.
func Clone(r Record) Record {
	switch v := r.(type) {
	case *Entry:
		if v == nil {
			return nil
		}
		return v.clone()
	case *Preamble:
		if v == nil {
			return nil
		}
		c := *v
		return &c
	case *Comment:
		if v == nil {
			return nil
		}
		c := *v
		return &c
	default:
		return nil
	}
}

func (e *Entry) clone() *Entry {
	out := &Entry{
		Flags:   e.Flags,
		Type:    e.Type,
		CiteKey: e.CiteKey,
		Fields:  e.Fields.Clone(),
	}
	if e.Warnings != nil {
		out.Warnings = append([]string(nil), e.Warnings...)
	}
	return out
}

// Value returns the raw value of a simple variant. Entries report false.
func Value(r Record) (string, bool) {
	switch v := r.(type) {
	case *Preamble:
		return v.Value, true
	case *Comment:
		return v.Value, true
	default:
		return "", false
	}
}
