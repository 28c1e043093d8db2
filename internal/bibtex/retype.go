package bibtex

import (
	"fmt"
	"regexp"
)

var leadingKeyword = regexp.MustCompile(`^@[a-zA-Z]+`)

// Retype converts r to newType and lints the result. Host flags carry over.
//
//   - preamble <-> comment keeps the value;
//   - preamble/comment -> entry type rewrites the leading @keyword of the value
//     and parses it again, falling back to an empty entry when the value does
//     not hold an entry;
//   - entry -> preamble/comment stores the serialized entry as the value;
//   - entry -> entry type swaps the type.
func Retype(r Record, newType string) (Record, error) {
	if r == nil {
		return nil, ErrInvalidRecord
	}
	if newType != TypePreamble && newType != TypeComment && newType != TypeUnknown && !IsEntryType(newType) {
		return nil, fmt.Errorf("bibtex: retype: unknown type %q", newType)
	}
	if r.RecordType() == newType {
		return Lint(r), nil
	}
	flags := *r.UIFlags()

	var out Record
	switch v := r.(type) {
	case *Preamble, *Comment:
		value, _ := Value(v)
		switch newType {
		case TypePreamble:
			out = &Preamble{Flags: flags, Value: value}
		case TypeComment:
			out = &Comment{Flags: flags, Value: value}
		default:
			out = reparse(value, newType, flags)
		}
	case *Entry:
		switch newType {
		case TypePreamble, TypeComment:
			text, err := SerializeOne(v)
			if err != nil {
				return nil, err
			}
			if newType == TypePreamble {
				out = &Preamble{Flags: flags, Value: text}
			} else {
				out = &Comment{Flags: flags, Value: text}
			}
		default:
			e := v.clone()
			e.Type = newType
			out = e
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidRecord, r)
	}
	return Lint(out), nil
}

func reparse(value, newType string, flags Flags) *Entry {
	text := leadingKeyword.ReplaceAllLiteralString(value, "@"+newType)
	recs, err := Parse(text)
	if err == nil {
		for _, rec := range recs {
			if e, ok := rec.(*Entry); ok {
				e.Type = newType
				e.Flags = flags
				return e
			}
		}
	}
	e := NewEntry(newType, "")
	e.Flags = flags
	return e
}
