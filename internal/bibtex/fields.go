package bibtex

import (
	"bytes"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Field is a single name/value pair.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Fields is an insertion-ordered field mapping. Setting an existing name
// replaces its value in place; the first-seen position is kept.
//
// A nil *Fields behaves as an empty mapping for every read.
type Fields struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewFields returns an empty mapping.
func NewFields() *Fields {
	return &Fields{m: orderedmap.New[string, string]()}
}

// FieldsOf builds a mapping from pairs, applying Set in order.
func FieldsOf(pairs ...Field) *Fields {
	f := NewFields()
	for _, p := range pairs {
		f.Set(p.Name, p.Value)
	}
	return f
}

func (f *Fields) ensure() {
	if f.m == nil {
		f.m = orderedmap.New[string, string]()
	}
}

// Set assigns value to name.
func (f *Fields) Set(name, value string) {
	f.ensure()
	f.m.Set(name, value)
}

// Get returns the value stored under name.
func (f *Fields) Get(name string) (string, bool) {
	if f == nil || f.m == nil {
		return "", false
	}
	return f.m.Get(name)
}

// Value returns the value under name or "" when absent.
func (f *Fields) Value(name string) string {
	v, _ := f.Get(name)
	return v
}

// Has reports whether name is present.
func (f *Fields) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

// Delete removes name and reports whether it was present.
func (f *Fields) Delete(name string) bool {
	if f == nil || f.m == nil {
		return false
	}
	_, ok := f.m.Delete(name)
	return ok
}

// Len returns the number of fields.
func (f *Fields) Len() int {
	if f == nil || f.m == nil {
		return 0
	}
	return f.m.Len()
}

// Names returns field names in order.
func (f *Fields) Names() []string {
	out := make([]string, 0, f.Len())
	if f.Len() == 0 {
		return out
	}
	for p := f.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

// Pairs returns the fields in order.
func (f *Fields) Pairs() []Field {
	out := make([]Field, 0, f.Len())
	if f.Len() == 0 {
		return out
	}
	for p := f.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, Field{Name: p.Key, Value: p.Value})
	}
	return out
}

// Clone returns an independent copy.
func (f *Fields) Clone() *Fields {
	return FieldsOf(f.Pairs()...)
}

// Equal reports whether both mappings hold the same pairs in the same order.
func (f *Fields) Equal(other *Fields) bool {
	a, b := f.Pairs(), other.Pairs()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the mapping as a JSON object in field order.
func (f *Fields) MarshalJSON() ([]byte, error) {
	if f == nil || f.m == nil {
		return []byte("{}"), nil
	}
	return f.m.MarshalJSON()
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (f *Fields) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.m = orderedmap.New[string, string]()
		return nil
	}
	m := orderedmap.New[string, string]()
	if err := m.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("bibtex: decode fields: %w", err)
	}
	f.m = m
	return nil
}
