package bibtex

import (
	"encoding/json"
	"fmt"
)

type entryJSON struct {
	Type     string   `json:"type"`
	CiteKey  string   `json:"citeKey"`
	Fields   *Fields  `json:"fields"`
	Warnings []string `json:"warnings"`
	Selected bool     `json:"selected"`
	IsOpen   bool     `json:"isOpen"`
}

type valueJSON struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
	IsOpen   bool   `json:"isOpen"`
}

// MarshalJSON encodes the entry with its fields in order.
func (e *Entry) MarshalJSON() ([]byte, error) {
	fields := e.Fields
	if fields == nil {
		fields = NewFields()
	}
	return json.Marshal(entryJSON{
		Type:     e.Type,
		CiteKey:  e.CiteKey,
		Fields:   fields,
		Warnings: nonNil(e.Warnings),
		Selected: e.Selected,
		IsOpen:   e.IsOpen,
	})
}

func (p *Preamble) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueJSON{Type: TypePreamble, Value: p.Value, Selected: p.Selected, IsOpen: p.IsOpen})
}

func (c *Comment) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueJSON{Type: TypeComment, Value: c.Value, Selected: c.Selected, IsOpen: c.IsOpen})
}

// UnmarshalRecord decodes the JSON form of any variant. Objects carrying
// fields or citeKey are entries; preamble and comment need a value.
func UnmarshalRecord(data []byte) (Record, error) {
	var probe struct {
		Type     string          `json:"type"`
		CiteKey  *string         `json:"citeKey"`
		Fields   json.RawMessage `json:"fields"`
		Warnings []string        `json:"warnings"`
		Value    *string         `json:"value"`
		Selected bool            `json:"selected"`
		IsOpen   bool            `json:"isOpen"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	flags := Flags{Selected: probe.Selected, IsOpen: probe.IsOpen}

	if probe.CiteKey != nil || len(probe.Fields) > 0 {
		if probe.Type == TypePreamble || probe.Type == TypeComment {
			return nil, fmt.Errorf("%w: %s cannot carry fields", ErrInvalidRecord, probe.Type)
		}
		e := &Entry{Flags: flags, Type: probe.Type, Fields: NewFields(), Warnings: probe.Warnings}
		if probe.CiteKey != nil {
			e.CiteKey = *probe.CiteKey
		}
		if len(probe.Fields) > 0 {
			if err := e.Fields.UnmarshalJSON(probe.Fields); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
			}
		}
		return e, nil
	}

	if probe.Value == nil {
		return nil, fmt.Errorf("%w: neither fields nor value present", ErrInvalidRecord)
	}
	switch probe.Type {
	case TypePreamble:
		return &Preamble{Flags: flags, Value: *probe.Value}, nil
	case TypeComment:
		return &Comment{Flags: flags, Value: *probe.Value}, nil
	default:
		return nil, fmt.Errorf("%w: type %q cannot carry a value", ErrInvalidRecord, probe.Type)
	}
}

// UnmarshalRecords decodes a JSON array of records.
func UnmarshalRecords(data []byte) ([]Record, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	out := make([]Record, 0, len(raw))
	for i, msg := range raw {
		r, err := UnmarshalRecord(msg)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}
