package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bibtidy/internal/apperr"
	"github.com/starford/bibtidy/internal/library"
)

// Handler holds API route handlers.
type Handler struct {
	svc *library.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *library.Service) *Handler {
	return &Handler{svc: svc}
}

func setETag(w http.ResponseWriter, it *library.Item) {
	w.Header().Set("ETag", `"`+it.ETag+`"`)
}

// ListRecords handles GET /api/records.
//
//	@Summary		List records in display order
//	@Tags			records
//	@Produce		json
//	@Param			type		query		string	false	"Filter by record type"
//	@Param			selected	query		bool	false	"Filter by selection flag"
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Success		200			{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := library.Filter{Type: q.Get("type")}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))
	if s := q.Get("selected"); s != "" {
		sel, err := strconv.ParseBool(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("selected must be a boolean"))
			return
		}
		f.Selected = &sel
	}

	items, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeError(w, "list records", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: items, Total: total})
}

// GetRecord handles GET /api/records/{id}.
//
//	@Summary		Get a single record
//	@Tags			records
//	@Produce		json
//	@Param			id	path		string	true	"Record ID"
//	@Success		200	{object}	RecordItem
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	it, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	setETag(w, it)
	writeJSON(w, http.StatusOK, it)
}

// CreateRecord handles POST /api/records. The body is an optional record;
// without one an empty article is added.
//
//	@Summary		Add a record at the top of the list
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Success		201	{object}	RecordItem
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records [post]
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	rec, err := decodeRecord(body)
	if err != nil {
		writeError(w, "create record", err)
		return
	}
	it, err := h.svc.Add(r.Context(), rec)
	if err != nil {
		writeError(w, "create record", err)
		return
	}
	setETag(w, it)
	writeJSON(w, http.StatusCreated, it)
}

// UpdateRecord handles PUT /api/records/{id}.
//
//	@Summary		Replace a record with optimistic concurrency
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string	true	"Record ID"
//	@Param			If-Match	header		string	false	"ETag for optimistic concurrency"
//	@Success		200			{object}	RecordItem
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [put]
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	rec, err := decodeRecord(body)
	if err != nil {
		writeError(w, "update record", err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("record body is required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	it, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), rec, ifMatch)
	if err != nil {
		writeError(w, "update record", err)
		return
	}
	setETag(w, it)
	writeJSON(w, http.StatusOK, it)
}

// DeleteRecord handles DELETE /api/records/{id}.
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Delete(r.Context(), []string{chi.URLParam(r, "id")})
	if err != nil {
		writeError(w, "delete record", err)
		return
	}
	if n == 0 {
		writeError(w, "delete record", apperr.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetypeRecord handles POST /api/records/{id}/type.
//
//	@Summary		Change a record's type
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Record ID"
//	@Param			body	body		RetypeRequest	true	"New type"
//	@Success		200		{object}	RecordItem
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id}/type [post]
func (h *Handler) RetypeRecord(w http.ResponseWriter, r *http.Request) {
	var req RetypeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	it, err := h.svc.Retype(r.Context(), chi.URLParam(r, "id"), req.Type)
	if err != nil {
		writeError(w, "retype record", err)
		return
	}
	setETag(w, it)
	writeJSON(w, http.StatusOK, it)
}

// SelectRecords handles POST /api/records/select.
func (h *Handler) SelectRecords(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.SetSelected(r.Context(), req.IDs, req.Selected)
	if err != nil {
		writeError(w, "select records", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// DeleteRecords handles POST /api/records/delete.
func (h *Handler) DeleteRecords(w http.ResponseWriter, r *http.Request) {
	var req IDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.Delete(r.Context(), req.IDs)
	if err != nil {
		writeError(w, "delete records", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// ProtectRecords handles POST /api/records/protect.
func (h *Handler) ProtectRecords(w http.ResponseWriter, r *http.Request) {
	var req ProtectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.ProtectCapitals(r.Context(), req.IDs)
	if err != nil {
		writeError(w, "protect records", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// ClearRecords handles DELETE /api/records.
func (h *Handler) ClearRecords(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Clear(r.Context()); err != nil {
		writeError(w, "clear records", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Import handles POST /api/import. The body is raw BibTeX text.
//
//	@Summary		Import BibTeX text at the top of the list
//	@Tags			records
//	@Accept			plain
//	@Produce		json
//	@Param			name	query		string	false	"Name of the imported file"
//	@Success		201		{object}	RecordListResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload"
	}
	items, err := h.svc.Import(r.Context(), name, string(body))
	if err != nil {
		writeError(w, "import", err)
		return
	}
	writeJSON(w, http.StatusCreated, RecordListResponse{Records: items, Total: len(items)})
}

// Export handles GET /api/export and serves the file as a download.
//
//	@Summary		Download records as a .bib file
//	@Tags			records
//	@Produce		plain
//	@Param			ids			query	string	false	"Comma-separated record IDs"
//	@Param			selected	query	bool	false	"Export only selected records"
//	@Param			filename	query	string	false	"Download file name"
//	@Success		200
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := library.ExportRequest{Filename: q.Get("filename")}
	for _, id := range strings.Split(q.Get("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			req.IDs = append(req.IDs, id)
		}
	}
	req.SelectedOnly, _ = strconv.ParseBool(q.Get("selected"))

	out, err := h.svc.Export(r.Context(), req)
	if err != nil {
		writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", out.MIMEType+"; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(out.Filename, `"`, "")+`"`)
	w.Header().Set("X-Record-Count", strconv.Itoa(out.Count))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out.Content))
}

// Search handles GET /api/search.
//
//	@Summary		Search records by cite key, type or field text
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	RecordListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: items, Total: len(items)})
}

// Sources handles GET /api/sources.
func (h *Handler) Sources(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Sources(r.Context())
	if err != nil {
		writeError(w, "sources", err)
		return
	}
	out := make([]SourceDTO, len(rows))
	for i, s := range rows {
		out[i] = SourceDTO(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}
