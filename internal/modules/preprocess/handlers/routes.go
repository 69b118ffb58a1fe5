package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers preprocess routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/preprocess", func(r chi.Router) {
		r.Get("/", h.HandleListRuns)
		r.Post("/", h.HandleProcess)
		r.Get("/{date}", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetResult(w, r, chi.URLParam(r, "date"))
		})
	})
}
