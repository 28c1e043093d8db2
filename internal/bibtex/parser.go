package bibtex

import (
	"fmt"
	"strings"
)

// SyntaxError reports malformed input. Offset is the byte position in the
// parsed text; Line is 1-based.
type SyntaxError struct {
	Offset int
	Line   int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("bibtex: %s at position %d (line %d)", e.Msg, e.Offset, e.Line)
}

// Parse scans text once, left to right, and returns the records it holds in
// source order. Text outside @-constructs is discarded. The first malformed
// construct aborts the whole parse. Entry types are kept as written; Lint
// folds them into the known set.
func Parse(text string) ([]Record, error) {
	p := &parser{input: text}
	out := make([]Record, 0)
	for !p.eof() {
		p.skipWhitespace()
		if p.peek() != '@' {
			p.pos++
			continue
		}
		r, err := p.parseRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ParseAndLint parses text and lints every record.
func ParseAndLint(text string) ([]Record, error) {
	recs, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return LintAll(recs), nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) eof() bool { return p.pos >= len(p.input) }

// peek returns the current byte or 0 at end of input.
func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *parser) errorf(format string, args ...any) *SyntaxError {
	off := min(p.pos, len(p.input))
	return &SyntaxError{
		Offset: off,
		Line:   strings.Count(p.input[:off], "\n") + 1,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// consume advances past want or fails without moving.
func (p *parser) consume(want byte) error {
	if p.eof() {
		return p.errorf("expected '%c', but found end of input", want)
	}
	if got := p.input[p.pos]; got != want {
		return p.errorf("expected '%c', but found '%c'", want, got)
	}
	p.pos++
	return nil
}

func (p *parser) skipWhitespace() {
	for !p.eof() {
		switch c := p.input[p.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			p.pos++
		case c == '%':
			for !p.eof() && p.input[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '_' || c == ':'
}

func (p *parser) identifier() string {
	start := p.pos
	for !p.eof() && isIdentByte(p.input[p.pos]) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func (p *parser) parseRecord() (Record, error) {
	if err := p.consume('@'); err != nil {
		return nil, err
	}
	typ := p.identifier()
	if typ == "" {
		return nil, p.errorf("expected entry type after '@'")
	}
	p.skipWhitespace()

	switch strings.ToLower(typ) {
	case TypePreamble:
		v, err := p.blockValue()
		if err != nil {
			return nil, err
		}
		return &Preamble{Value: v}, nil
	case TypeComment:
		v, err := p.blockValue()
		if err != nil {
			return nil, err
		}
		return &Comment{Value: v}, nil
	default:
		return p.parseEntry(typ)
	}
}

func (p *parser) parseEntry(typ string) (*Entry, error) {
	if err := p.consume('{'); err != nil {
		return nil, err
	}
	p.skipWhitespace()
	e := NewEntry(typ, p.identifier())
	p.skipWhitespace()

	// An entry without fields may close right after its key.
	if p.peek() == '}' {
		p.pos++
		return e, nil
	}
	if err := p.consume(','); err != nil {
		return nil, err
	}

	for {
		p.skipWhitespace()
		if p.peek() == '}' {
			break
		}
		if p.eof() {
			return nil, p.errorf("unexpected end of input in entry %q", e.CiteKey)
		}
		name := p.identifier()
		if name == "" {
			return nil, p.errorf("expected field name, but found '%c'", p.peek())
		}
		p.skipWhitespace()
		if err := p.consume('='); err != nil {
			return nil, err
		}
		p.skipWhitespace()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		e.Fields.Set(name, v)
		p.skipWhitespace()
		if p.peek() == ',' {
			p.pos++
		}
	}
	if err := p.consume('}'); err != nil {
		return nil, err
	}
	return e, nil
}

// value reads a brace- or quote-delimited string and returns its content.
func (p *parser) value() (string, error) {
	switch p.peek() {
	case '{':
		return p.braced()
	case '"':
		return p.quoted()
	}
	if p.eof() {
		return "", p.errorf("expected value, but found end of input")
	}
	return "", p.errorf("expected '{' or '\"', but found '%c'", p.peek())
}

// blockValue reads the body of a preamble or comment. A brace body holding
// exactly one quoted string yields that string; anything else inside the
// braces, such as `"a" # "b"`, is kept verbatim.
func (p *parser) blockValue() (string, error) {
	if p.peek() != '{' {
		return p.value()
	}
	open := p.pos
	p.pos++
	p.skipWhitespace()
	if p.peek() == '"' {
		if v, err := p.quoted(); err == nil {
			p.skipWhitespace()
			if p.peek() == '}' {
				p.pos++
				return v, nil
			}
		}
	}
	p.pos = open
	return p.braced()
}

// braced keeps nested braces verbatim and strips the outer pair.
func (p *parser) braced() (string, error) {
	open := p.pos
	p.pos++
	depth := 1
	start := p.pos
	for !p.eof() {
		switch p.input[p.pos] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				v := p.input[start:p.pos]
				p.pos++
				return v, nil
			}
		}
		p.pos++
	}
	return "", &SyntaxError{
		Offset: open,
		Line:   strings.Count(p.input[:open], "\n") + 1,
		Msg:    "unterminated '{'",
	}
}

// quoted ends at the first '"'; there is no escape handling.
func (p *parser) quoted() (string, error) {
	open := p.pos
	p.pos++
	end := strings.IndexByte(p.input[p.pos:], '"')
	if end < 0 {
		p.pos = len(p.input)
		return "", &SyntaxError{
			Offset: open,
			Line:   strings.Count(p.input[:open], "\n") + 1,
			Msg:    "unterminated '\"'",
		}
	}
	v := p.input[p.pos : p.pos+end]
	p.pos += end + 1
	return v, nil
}
