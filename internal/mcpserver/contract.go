package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/bibtidy/internal/bibtex"
)

const formatRules = `# bibtidy Entry Format

Every record in a bibtidy library is one of:

- an entry: ` + "`@type{citekey, name = {value}, ...}`" + `
- a preamble: ` + "`@preamble{...}`" + `
- a comment: ` + "`@comment{...}`" + `

## Rules

1. **Types and field names are lowercase.** A type within two edits of a
   known type (case counts, so ` + "`Article`" + ` is one edit) is corrected with a
   "type changed" warning; anything further away becomes ` + "`unknown`" + `.
2. **Every entry needs a citation key.**
3. **Field order is fixed by the linter:** required fields, then recommended,
   then the well-known optional fields, then anything else in input order.
4. **Unknown fields with empty values are dropped.**
5. **Values are written brace-delimited** on output, one field per line.
6. **Protect capitals with braces** (` + "`{NASA}`" + `) in titles; leave
   author, editor, date and number fields alone.

## Entry types
`

// EntrySchemaGuide renders the entry-type table as Markdown for LLM
// consumers creating or fixing BibTeX.
func EntrySchemaGuide() string {
	var b strings.Builder
	b.WriteString(formatRules)
	for _, s := range bibtex.Schemas() {
		if !bibtex.IsEntryType(s.Name) {
			continue
		}
		fmt.Fprintf(&b, "\n### %s\n\n%s\n\n", s.Name, s.Description)
		fmt.Fprintf(&b, "- required: %s\n", fieldList(s.Required))
		fmt.Fprintf(&b, "- recommended: %s\n", fieldList(s.Recommended))
	}
	fmt.Fprintf(&b, "\n## Optional fields\n\nEvery linted entry also carries: %s\n", fieldList(bibtex.OptionalFields()))
	return b.String()
}

func fieldList(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return "`" + strings.Join(names, "`, `") + "`"
}
