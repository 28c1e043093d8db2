package api

import (
	"mime"
	"net/http"

	"github.com/starford/bibtidy/internal/bibtex"
)

// Parse handles POST /api/parse: raw BibTeX in, records out, no linting.
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	recs, err := bibtex.Parse(string(body))
	if err != nil {
		writeError(w, "parse", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordsResponse{Records: recs})
}

// Lint handles POST /api/lint. A JSON body is read as an array of records;
// anything else is parsed as BibTeX first.
func (h *Handler) Lint(w http.ResponseWriter, r *http.Request) {
	recs, ok := pipelineInput(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, RecordsResponse{Records: bibtex.LintAll(recs)})
}

// Format handles POST /api/format: parse, lint and serialize in one go.
func (h *Handler) Format(w http.ResponseWriter, r *http.Request) {
	recs, ok := pipelineInput(w, r)
	if !ok {
		return
	}
	text, err := bibtex.Serialize(bibtex.LintAll(recs))
	if err != nil {
		writeError(w, "format", err)
		return
	}
	w.Header().Set("Content-Type", bibtex.MIMEType+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

// Schema handles GET /api/schema.
func (h *Handler) Schema(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, SchemaResponse{
		Types:    bibtex.Schemas(),
		Optional: bibtex.OptionalFields(),
	})
}

func pipelineInput(w http.ResponseWriter, r *http.Request) ([]bibtex.Record, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	var recs []bibtex.Record
	var err error
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		recs, err = bibtex.UnmarshalRecords(body)
	} else {
		recs, err = bibtex.Parse(string(body))
	}
	if err != nil {
		writeError(w, "pipeline", err)
		return nil, false
	}
	return recs, true
}
