package internal

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/starford/bibtidy/internal/bibtex"
)

// ErrLintFailed is returned by LintFiles when any input failed to parse.
var ErrLintFailed = errors.New("lint failed")

// LintFiles parses and lints each file, printing one line per warning.
// It returns the number of warnings; a file that fails to parse is reported
// and makes the call return ErrLintFailed after the remaining files ran.
func LintFiles(w io.Writer, paths ...string) (int, error) {
	var warnings int
	failed := false
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return warnings, fmt.Errorf("read %s: %w", p, err)
		}
		recs, err := bibtex.ParseAndLint(string(data))
		if err != nil {
			var se *bibtex.SyntaxError
			if errors.As(err, &se) {
				fmt.Fprintf(w, "%s:%d: %s\n", p, se.Line, se.Msg)
			} else {
				fmt.Fprintf(w, "%s: %v\n", p, err)
			}
			failed = true
			continue
		}
		for _, rec := range recs {
			e, ok := rec.(*bibtex.Entry)
			if !ok {
				continue
			}
			for _, msg := range e.Warnings {
				fmt.Fprintf(w, "%s: %s: %s\n", p, e.CiteKey, msg)
				warnings++
			}
		}
	}
	if failed {
		return warnings, ErrLintFailed
	}
	return warnings, nil
}

// FormatFile parses, lints and re-serializes one file into canonical form.
func FormatFile(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	recs, err := bibtex.ParseAndLint(string(data))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	out, err := bibtex.Serialize(recs)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if _, err := io.WriteString(w, out); err != nil {
		return err
	}
	if out != "" {
		_, err = io.WriteString(w, "\n")
	}
	return err
}
