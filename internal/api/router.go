package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bibtidy/internal/library"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *library.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Records.
	r.Route("/records", func(r chi.Router) {
		r.Get("/", h.ListRecords)
		r.Post("/", h.CreateRecord)
		r.Delete("/", h.ClearRecords)
		r.Post("/select", h.SelectRecords)
		r.Post("/delete", h.DeleteRecords)
		r.Post("/protect", h.ProtectRecords)
		r.Get("/{id}", h.GetRecord)
		r.Put("/{id}", h.UpdateRecord)
		r.Delete("/{id}", h.DeleteRecord)
		r.Post("/{id}/type", h.RetypeRecord)
	})

	// Library files.
	r.Post("/import", h.Import)
	r.Get("/export", h.Export)
	r.Get("/sources", h.Sources)
	r.Get("/search", h.Search)

	// Stateless pipeline.
	r.Post("/parse", h.Parse)
	r.Post("/lint", h.Lint)
	r.Post("/format", h.Format)
	r.Get("/schema", h.Schema)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
