package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/bibtidy/internal/library"
	"github.com/starford/bibtidy/internal/testutil"
)

// testEnv sets up a temp SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*library.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*library.Service, http.Handler) {
	t.Helper()
	svc := library.NewService(testutil.TestDB(t),
		library.WithLogger(testutil.Logger()),
		library.WithClock(func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local) }),
	)
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

// itemJSON mirrors library.Item with the record left undecoded.
type itemJSON struct {
	ID     string          `json:"id"`
	ETag   string          `json:"etag"`
	Record json.RawMessage `json:"record"`
}

type entryJSON struct {
	Type     string            `json:"type"`
	CiteKey  string            `json:"citeKey"`
	Fields   map[string]string `json:"fields"`
	Warnings []string          `json:"warnings"`
	Selected bool              `json:"selected"`
	Value    string            `json:"value"`
}

type listJSON struct {
	Records []itemJSON `json:"records"`
	Total   int        `json:"total"`
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func importSample(t *testing.T, router http.Handler) listJSON {
	t.Helper()
	w := do(t, router, http.MethodPost, "/import?name=sample.bib", testutil.Sample)
	if w.Code != http.StatusCreated {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[listJSON](t, w)
}

func TestImportAndList(t *testing.T) {
	_, router := testEnv(t, "")
	imported := importSample(t, router)
	if imported.Total != 3 {
		t.Fatalf("imported = %d, want 3", imported.Total)
	}

	w := do(t, router, http.MethodGet, "/records", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list := decode[listJSON](t, w)
	if list.Total != 3 || list.Records[1].ID != imported.Records[1].ID {
		t.Fatalf("list = %+v", list)
	}
	var e entryJSON
	_ = json.Unmarshal(list.Records[1].Record, &e)
	if e.Type != "article" || e.CiteKey != "knuth74" {
		t.Errorf("second record = %+v", e)
	}
	if e.Warnings == nil {
		t.Error("warnings should serialize as an array")
	}

	w = do(t, router, http.MethodGet, "/records?type=inproceedings", "")
	if got := decode[listJSON](t, w); got.Total != 1 {
		t.Errorf("type filter total = %d", got.Total)
	}
	w = do(t, router, http.MethodGet, "/records?selected=maybe", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad selected = %d, want 400", w.Code)
	}
}

func TestImportErrors(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/import", "@misc{k, title = {open")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("syntax error = %d, want 400", w.Code)
	}
	body := decode[errResponse](t, w)
	if body.Offset == nil || body.Line != 1 {
		t.Errorf("syntax error body = %+v", body)
	}

	w = do(t, router, http.MethodPost, "/import", "no records here")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty import = %d, want 422", w.Code)
	}
}

func TestCreateAndGetRecord(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/records", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decode[itemJSON](t, w)
	if w.Header().Get("ETag") != `"`+created.ETag+`"` {
		t.Errorf("ETag header = %q", w.Header().Get("ETag"))
	}

	w = do(t, router, http.MethodGet, "/records/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var e entryJSON
	_ = json.Unmarshal(decode[itemJSON](t, w).Record, &e)
	if e.Type != "article" {
		t.Errorf("default record type = %q", e.Type)
	}
	if _, ok := e.Fields["journal"]; !ok {
		t.Error("default article should carry its required fields")
	}

	w = do(t, router, http.MethodPost, "/records", `{"type":"comment","value":"hello"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create comment = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodPost, "/records", `{"type":"comment"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid record = %d, want 400", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	created := decode[itemJSON](t, do(t, router, http.MethodPost, "/records", `{"type":"misc","citeKey":"k","fields":{"title":"v1"}}`))

	update := `{"type":"misc","citeKey":"k","fields":{"title":"v2"}}`
	req := httptest.NewRequest(http.MethodPut, "/records/"+created.ID, strings.NewReader(update))
	req.Header.Set("If-Match", `"`+created.ETag+`"`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct etag = %d, body = %s", w.Code, w.Body.String())
	}

	// Stale etag → 409.
	req = httptest.NewRequest(http.MethodPut, "/records/"+created.ID, strings.NewReader(update))
	req.Header.Set("If-Match", created.ETag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale etag = %d, want 409", w.Code)
	}
}

func TestUpdateWithoutIfMatch(t *testing.T) {
	_, router := testEnv(t, "")
	created := decode[itemJSON](t, do(t, router, http.MethodPost, "/records", ""))

	w := do(t, router, http.MethodPut, "/records/"+created.ID, `{"type":"book","citeKey":"b","fields":{"title":"T"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update without If-Match = %d, body = %s", w.Code, w.Body.String())
	}
	w = do(t, router, http.MethodPut, "/records/"+created.ID, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("update without body = %d, want 400", w.Code)
	}
}

func TestUpdateRecord_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPut, "/records/missing", `{"type":"misc","citeKey":"k"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/records/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d, want 404", w.Code)
	}
}

func TestRetypeRecord(t *testing.T) {
	_, router := testEnv(t, "")
	imported := importSample(t, router)
	id := imported.Records[0].ID // the comment

	w := do(t, router, http.MethodPost, "/records/"+id+"/type", `{"type":"preamble"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("retype = %d, body = %s", w.Code, w.Body.String())
	}
	var e entryJSON
	_ = json.Unmarshal(decode[itemJSON](t, w).Record, &e)
	if e.Type != "preamble" || e.Value != "exported by hand" {
		t.Errorf("retyped = %+v", e)
	}

	w = do(t, router, http.MethodPost, "/records/"+id+"/type", `{"type":"nonsense"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown type = %d, want 400", w.Code)
	}
}

func TestSelectProtectAndExport(t *testing.T) {
	_, router := testEnv(t, "")
	imported := importSample(t, router)
	knuth := imported.Records[1].ID

	w := do(t, router, http.MethodPost, "/records/select", `{"ids":["`+knuth+`"],"selected":true}`)
	if got := decode[CountResponse](t, w); got.Count != 1 {
		t.Fatalf("select count = %d", got.Count)
	}
	w = do(t, router, http.MethodPost, "/records/protect", `{}`)
	if got := decode[CountResponse](t, w); got.Count != 1 {
		t.Fatalf("protect count = %d", got.Count)
	}

	w = do(t, router, http.MethodGet, "/export?selected=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/x-bibtex") {
		t.Errorf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="export_20240102_030405.bib"` {
		t.Errorf("content disposition = %q", cd)
	}
	if !strings.Contains(w.Body.String(), "title = {{C}omputer {P}rogramming as an {A}rt}") {
		t.Errorf("export body = %q", w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/export?ids="+imported.Records[2].ID+"&filename=one", "")
	if !strings.Contains(w.Header().Get("Content-Disposition"), `filename="one.bib"`) {
		t.Errorf("named export = %q", w.Header().Get("Content-Disposition"))
	}
	if !strings.HasPrefix(w.Body.String(), "@inproceedings{lamport78,") {
		t.Errorf("export by id = %q", w.Body.String())
	}
}

func TestDeleteAndClear(t *testing.T) {
	_, router := testEnv(t, "")
	imported := importSample(t, router)

	w := do(t, router, http.MethodDelete, "/records/"+imported.Records[0].ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	w = do(t, router, http.MethodDelete, "/records/"+imported.Records[0].ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("delete again = %d, want 404", w.Code)
	}

	w = do(t, router, http.MethodPost, "/records/delete", `{"ids":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("batch delete without ids = %d, want 400", w.Code)
	}
	w = do(t, router, http.MethodPost, "/records/delete", `{"ids":["`+imported.Records[1].ID+`"]}`)
	if got := decode[CountResponse](t, w); got.Count != 1 {
		t.Errorf("batch delete count = %d", got.Count)
	}

	w = do(t, router, http.MethodDelete, "/records", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("clear = %d", w.Code)
	}
	if got := decode[listJSON](t, do(t, router, http.MethodGet, "/records", "")); got.Total != 0 {
		t.Errorf("total after clear = %d", got.Total)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	importSample(t, router)

	w := do(t, router, http.MethodGet, "/search?q=lamport", "")
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	if got := decode[listJSON](t, w); got.Total != 1 {
		t.Errorf("search hits = %d, want 1", got.Total)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/search", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestPipelineEndpoints(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/parse", `@book{k, title = "T"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("parse = %d", w.Code)
	}
	var parsed struct {
		Records []entryJSON `json:"records"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &parsed)
	if len(parsed.Records) != 1 || parsed.Records[0].Type != "book" || parsed.Records[0].Fields["title"] != "T" {
		t.Errorf("parse = %+v", parsed)
	}

	req := httptest.NewRequest(http.MethodPost, "/lint", bytes.NewReader([]byte(`[{"type":"artcle","citeKey":"k","fields":{"title":"T"}}]`)))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var linted struct {
		Records []entryJSON `json:"records"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &linted)
	if len(linted.Records) != 1 || linted.Records[0].Type != "article" {
		t.Fatalf("lint = %s", w.Body.String())
	}
	if !strings.HasPrefix(linted.Records[0].Warnings[0], "type changed") {
		t.Errorf("lint warnings = %v", linted.Records[0].Warnings)
	}

	w = do(t, router, http.MethodPost, "/format", "@comment{x}\n@misc{k, title = {T}}")
	if w.Code != http.StatusOK {
		t.Fatalf("format = %d", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "@comment{x}\n@misc{k,\ntitle = {T},\n") {
		t.Errorf("format body = %q", w.Body.String())
	}

	w = do(t, router, http.MethodPost, "/format", "@misc{k")
	if w.Code != http.StatusBadRequest {
		t.Errorf("format syntax error = %d, want 400", w.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodGet, "/schema", "")
	if w.Code != http.StatusOK {
		t.Fatalf("schema = %d", w.Code)
	}
	var body struct {
		Types []struct {
			Name     string   `json:"name"`
			Required []string `json:"required"`
		} `json:"types"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Types) != 23 || body.Types[0].Name != "article" {
		t.Errorf("schema types = %d, first = %+v", len(body.Types), body.Types)
	}
}

// Auth middleware tests.

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	w := do(t, router, http.MethodGet, "/records", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("missing token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/records", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// SSE endpoint auth tests.

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)
	w := do(t, router, http.MethodGet, "/events", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
