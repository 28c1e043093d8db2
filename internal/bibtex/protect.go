package bibtex

import (
	"regexp"
	"strings"
)

// unprotectedFields hold names, places, dates and numbers, whose case BibTeX
// styles leave alone anyway.
var unprotectedFields = regexp.MustCompile(`^(author|editor|publisher|institution|school|address|organization|month|year|day|volume|number|pages|chapter|edition|series)$`)

// ProtectCapitals wraps each run of capital letters and digits in braces so
// bibliography styles keep their case: "Deep NASA Models 2" becomes
// "{D}eep {NASA} {M}odels {2}". Text already inside braces, $...$ math and
// \commands is copied as is, so applying it twice changes nothing.
func ProtectCapitals(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 8)

	depth := 0
	math := false
	run := false
	closeRun := func() {
		if run {
			b.WriteByte('}')
			run = false
		}
	}

	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case math:
			b.WriteByte(c)
			if c == '$' {
				math = false
			}
		case c == '\\':
			closeRun()
			b.WriteByte(c)
			// Copy the command name, or the single escaped character.
			j := i + 1
			for j < len(value) && isASCIILetter(value[j]) {
				j++
			}
			if j == i+1 && j < len(value) {
				j++
			}
			b.WriteString(value[i+1 : j])
			i = j - 1
		case depth > 0:
			b.WriteByte(c)
			switch c {
			case '{':
				depth++
			case '}':
				depth--
			}
		case c == '{':
			closeRun()
			depth++
			b.WriteByte(c)
		case c == '$':
			closeRun()
			math = true
			b.WriteByte(c)
		case isCapitalOrDigit(c):
			if !run {
				b.WriteByte('{')
				run = true
			}
			b.WriteByte(c)
		default:
			closeRun()
			b.WriteByte(c)
		}
	}
	closeRun()
	return b.String()
}

// ProtectEntry returns a copy of e with ProtectCapitals applied to every
// field except names, places, dates and numbers.
func ProtectEntry(e *Entry) *Entry {
	out := e.clone()
	for _, f := range out.Fields.Pairs() {
		if unprotectedFields.MatchString(f.Name) {
			continue
		}
		out.Fields.Set(f.Name, ProtectCapitals(f.Value))
	}
	return out
}

// IsProtectedField reports whether ProtectEntry rewrites the named field.
func IsProtectedField(name string) bool {
	return !unprotectedFields.MatchString(name)
}

func isASCIILetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isCapitalOrDigit(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
