package bibtex

// EntrySchema lists the fields an entry type expects. Order is significant:
// it is the order fields are laid out in after linting.
type EntrySchema struct {
	Description string   `json:"description"`
	Required    []string `json:"required"`
	Recommended []string `json:"recommended"`
}

// entryTypes is the canonical order used for display and for breaking ties
// during type correction.
var entryTypes = []string{
	"article", "book", "booklet", "conference", "glossdef",
	"inbook", "incollection", "inproceedings",
	"jurthesis", "manual", "mastersthesis", "misc",
	"periodical", "phdthesis", "proceedings", "techreport",
	"unpublished", "url", "electronic", "webpage",
}

// optionalFields are always present on a linted entry, after the schema
// fields and before anything unrecognised.
var optionalFields = []string{
	"abstract", "note", "keywords", "rating", "doi", "isbn", "issn", "issue",
}

var schemas = map[string]EntrySchema{
	"article": {
		Description: "An article from a journal, magazine, newspaper, or other periodical.",
		Required:    []string{"title", "author", "journal", "year"},
		Recommended: []string{"volume", "number", "pages", "month"},
	},
	"book": {
		Description: "A book where the publisher is clearly identifiable.",
		Required:    []string{"title", "author", "publisher", "year"},
		Recommended: []string{"volume", "number", "series", "address", "editor", "edition", "month"},
	},
	"booklet": {
		Description: "A printed work that is bound, but does not have a clearly identifiable publisher or supporting institution.",
		Required:    []string{"title"},
		Recommended: []string{"author", "howpublished", "address", "month", "year"},
	},
	"conference": {
		Description: "An article that has been included in conference proceedings.",
		Required:    []string{"title", "author", "booktitle", "year"},
		Recommended: []string{"editor", "volume", "pages", "number", "series", "address", "month", "organization", "publisher"},
	},
	"glossdef": {
		Description: "A definition of a term in a glossary.",
		Required:    []string{"word", "description"},
		Recommended: []string{"keywords", "sort-word", "short", "group", "title"},
	},
	"inbook": {
		Description: "A section, such as a chapter, or a page range within a book.",
		Required:    []string{"title", "author", "chapter", "pages", "publisher", "year"},
		Recommended: []string{"editor", "number", "volume", "series", "type", "address", "edition", "month"},
	},
	"incollection": {
		Description: "A titled section of a book, such as a short story within a larger collection.",
		Required:    []string{"title", "author", "booktitle", "publisher", "year"},
		Recommended: []string{"editor", "volume", "number", "series", "type", "chapter", "pages", "address", "edition", "month"},
	},
	"inproceedings": {
		Description: "A paper that has been published in conference proceedings. Same usage as conference, which exists for Scribe compatibility.",
		Required:    []string{"title", "author", "booktitle", "year"},
		Recommended: []string{"editor", "volume", "series", "pages", "address", "month", "organization", "publisher"},
	},
	"jurthesis": {
		Description: "A thesis for a law degree.",
		Required:    []string{"title", "author", "school", "year"},
		Recommended: []string{"type", "address", "month"},
	},
	"manual": {
		Description: "A technical manual for a machine or software, such as would come with a purchase to explain operation to the new owner.",
		Required:    []string{"title"},
		Recommended: []string{"author", "organization", "address", "edition", "month", "year"},
	},
	"mastersthesis": {
		Description: "A thesis written for the Master's level degree.",
		Required:    []string{"title", "author", "school", "year"},
		Recommended: []string{"type", "address", "month"},
	},
	"misc": {
		Description: "Used if none of the other entry types quite match the source. Frequently used to cite web pages, but can be anything from lecture slides to personal notes.",
		Required:    []string{},
		Recommended: []string{"title", "author", "howpublished", "month", "year"},
	},
	"periodical": {
		Description: "A periodical.",
		Required:    []string{"title", "year", "author"},
		Recommended: []string{"editor", "volume", "journal", "pages"},
	},
	"phdthesis": {
		Description: "A thesis written for the PhD level degree.",
		Required:    []string{"title", "author", "school", "year"},
		Recommended: []string{"type", "address", "month"},
	},
	"proceedings": {
		Description: "A conference proceeding.",
		Required:    []string{"title", "year"},
		Recommended: []string{"editor", "number", "volume", "series", "address", "month", "publisher", "organization"},
	},
	"techreport": {
		Description: "An institutionally published report such as a report from a school, a government organization, an organization, or a company. Also used for white papers and working papers.",
		Required:    []string{"title", "author", "institution", "year"},
		Recommended: []string{"type", "number", "address", "month"},
	},
	"unpublished": {
		Description: "A document that has not been officially published such as a paper draft or manuscript in preparation.",
		Required:    []string{"title", "author"},
		Recommended: []string{"month", "year"},
	},
	"url": {
		Description: "A resource on the internet.",
		Required:    []string{"url"},
		Recommended: []string{"urldate", "title", "author", "lastchecked"},
	},
	"electronic": {
		Description: "An electronic book.",
		Required:    []string{"title", "author"},
		Recommended: []string{"urldate"},
	},
	"webpage": {
		Description: "A webpage.",
		Required:    []string{"title", "url"},
		Recommended: []string{"lastchecked", "year", "month"},
	},
	TypePreamble: {
		Description: "The preamble of a BibTeX file.",
		Required:    []string{},
		Recommended: []string{},
	},
	TypeComment: {
		Description: "A comment in a BibTeX file.",
		Required:    []string{},
		Recommended: []string{},
	},
	TypeUnknown: {
		Description: "An unknown entry type.",
		Required:    []string{},
		Recommended: []string{},
	},
}

// LookupSchema returns the schema registered for name. The returned slices
// are copies.
func LookupSchema(name string) (EntrySchema, bool) {
	s, ok := schemas[name]
	if !ok {
		return EntrySchema{}, false
	}
	return EntrySchema{
		Description: s.Description,
		Required:    append([]string{}, s.Required...),
		Recommended: append([]string{}, s.Recommended...),
	}, true
}

// EntryTypes returns the bibliographic entry types in canonical order.
func EntryTypes() []string {
	return append([]string{}, entryTypes...)
}

// AllTypes returns every type a record may carry: the entry types followed
// by preamble, comment and unknown.
func AllTypes() []string {
	return append(EntryTypes(), TypePreamble, TypeComment, TypeUnknown)
}

// OptionalFields returns the well-known optional field names.
func OptionalFields() []string {
	return append([]string{}, optionalFields...)
}

// IsEntryType reports whether name is a bibliographic entry type.
func IsEntryType(name string) bool {
	for _, t := range entryTypes {
		if t == name {
			return true
		}
	}
	return false
}

// NamedSchema pairs a type name with its schema.
type NamedSchema struct {
	Name string `json:"name"`
	EntrySchema
}

// Schemas returns the whole table in AllTypes order.
func Schemas() []NamedSchema {
	names := AllTypes()
	out := make([]NamedSchema, 0, len(names))
	for _, n := range names {
		s, _ := LookupSchema(n)
		out = append(out, NamedSchema{Name: n, EntrySchema: s})
	}
	return out
}
