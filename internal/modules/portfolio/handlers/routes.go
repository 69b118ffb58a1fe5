package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Post("/calculate", h.HandleCalculate)

		r.Route("/{client}", func(r chi.Router) {
			r.Get("/snapshots/{date}", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetSnapshot(w, r, chi.URLParam(r, "client"), chi.URLParam(r, "date"))
			})
			r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
				h.HandleGetHistory(w, r, chi.URLParam(r, "client"))
			})
		})
	})
}
