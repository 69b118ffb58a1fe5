package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers dashboard routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/dashboard/{date}", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			h.HandleGetAggregate(w, r, chi.URLParam(r, "date"))
		})
		r.Post("/refresh", func(w http.ResponseWriter, r *http.Request) {
			h.HandleRefresh(w, r, chi.URLParam(r, "date"))
		})
	})
}
