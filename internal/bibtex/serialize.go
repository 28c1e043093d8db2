package bibtex

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRecord marks a value that is none of the record variants.
var ErrInvalidRecord = errors.New("bibtex: invalid record")

// MIMEType is the media type of serialized output.
const MIMEType = "application/x-bibtex"

// SerializeOne renders a single record. Field values are always written
// brace-delimited.
func SerializeOne(r Record) (string, error) {
	switch v := r.(type) {
	case *Preamble:
		if v != nil {
			return "@preamble{" + unwrap(v.Value, "@preamble{") + "}", nil
		}
	case *Comment:
		if v != nil {
			return "@comment{" + unwrap(v.Value, "@comment{") + "}", nil
		}
	case *Entry:
		if v != nil {
			return serializeEntry(v), nil
		}
	}
	return "", fmt.Errorf("%w: %T", ErrInvalidRecord, r)
}

// Serialize renders records separated by a single newline.
func Serialize(records []Record) (string, error) {
	parts := make([]string, 0, len(records))
	for i, r := range records {
		s, err := SerializeOne(r)
		if err != nil {
			return "", fmt.Errorf("record %d: %w", i, err)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n"), nil
}

func serializeEntry(e *Entry) string {
	pairs := e.Fields.Pairs()
	lines := make([]string, len(pairs))
	for i, f := range pairs {
		lines[i] = f.Name + " = {" + f.Value + "}"
	}
	var b strings.Builder
	b.WriteString("@")
	b.WriteString(e.Type)
	b.WriteString("{")
	b.WriteString(e.CiteKey)
	b.WriteString(",\n")
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n}")
	return b.String()
}

// unwrap strips a wrapper left over from a raw block, such as a value that
// still reads "@comment{...}".
func unwrap(value, prefix string) string {
	if !strings.HasPrefix(value, prefix) {
		return value
	}
	if len(value) == len(prefix) {
		return ""
	}
	return value[len(prefix) : len(value)-1]
}
