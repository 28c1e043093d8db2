package bibtex

import (
	"fmt"
	"strings"
)

// Warning prefixes produced by Lint, in the order they are reported.
const (
	WarnMissingCiteKey   = "missing citation key"
	WarnTypeChanged      = "type changed"
	WarnEmptyRequired    = "empty required fields"
	WarnUnknownFields    = "unknown fields present"
	WarnDeletedUnknown   = "deleted empty unknown fields"
	WarnEmptyRecommended = "empty recommended fields"
)

// Lint returns a normalized copy of r. The input is never modified.
//
// Preambles and comments come back unchanged. Entries get their type folded
// into the known set (see ClosestType) and their fields rebuilt in schema
// order: required, recommended, well-known optional, then the remaining
// non-empty fields in input order. Warnings describe what was found. Entries
// that end up unknown keep their fields as they are.
func Lint(r Record) Record {
	e, ok := r.(*Entry)
	if !ok || e == nil {
		return Clone(r)
	}
	return lintEntry(e)
}

// LintAll lints every record.
func LintAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = Lint(r)
	}
	return out
}

func lintEntry(in *Entry) *Entry {
	typ := ClosestType(in.Type)
	out := &Entry{Flags: in.Flags, Type: typ, CiteKey: in.CiteKey}

	var warnings []string
	if in.CiteKey == "" {
		warnings = append(warnings, WarnMissingCiteKey)
	}
	if typ != in.Type {
		warnings = append(warnings, fmt.Sprintf("%s: `%s` -> `%s`", WarnTypeChanged, in.Type, typ))
	}

	if typ == TypeUnknown {
		out.Fields = in.Fields.Clone()
		out.Warnings = nonNil(warnings)
		return out
	}

	schema := schemas[typ]
	fields := NewFields()
	placed := make(map[string]struct{}, len(schema.Required)+len(schema.Recommended)+len(optionalFields))
	place := func(name string) string {
		v := in.Fields.Value(name)
		fields.Set(name, v)
		placed[name] = struct{}{}
		return v
	}

	var emptyRequired, emptyRecommended []string
	for _, name := range schema.Required {
		if place(name) == "" {
			emptyRequired = append(emptyRequired, name)
		}
	}
	for _, name := range schema.Recommended {
		if _, seen := placed[name]; seen {
			continue
		}
		if place(name) == "" {
			emptyRecommended = append(emptyRecommended, name)
		}
	}
	for _, name := range optionalFields {
		if _, seen := placed[name]; seen {
			continue
		}
		place(name)
	}

	var unknown, deleted []string
	for _, f := range in.Fields.Pairs() {
		if _, seen := placed[f.Name]; seen {
			continue
		}
		unknown = append(unknown, f.Name)
		if f.Value == "" {
			deleted = append(deleted, f.Name)
			continue
		}
		fields.Set(f.Name, f.Value)
	}

	warnings = appendList(warnings, WarnEmptyRequired, emptyRequired)
	warnings = appendList(warnings, WarnUnknownFields, unknown)
	warnings = appendList(warnings, WarnDeletedUnknown, deleted)
	warnings = appendList(warnings, WarnEmptyRecommended, emptyRecommended)

	out.Fields = fields
	out.Warnings = nonNil(warnings)
	return out
}

func appendList(warnings []string, prefix string, names []string) []string {
	if len(names) == 0 {
		return warnings
	}
	return append(warnings, prefix+": "+strings.Join(names, ", "))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
