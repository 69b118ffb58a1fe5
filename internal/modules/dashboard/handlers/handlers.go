// Package handlers provides HTTP handlers for the dashboard aggregates.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/modules/dashboard"
	"github.com/rs/zerolog"
)

// Handler handles dashboard HTTP requests
type Handler struct {
	service *dashboard.Service
	log     zerolog.Logger
}

// NewHandler creates a new dashboard handler
func NewHandler(service *dashboard.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "dashboard").Logger(),
	}
}

// HandleGetAggregate handles GET /api/dashboard/{date}?client=ALL|<code>
func (h *Handler) HandleGetAggregate(w http.ResponseWriter, r *http.Request, dateStr string) {
	date, err := domain.ParseDate(dateStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	filter := r.URL.Query().Get("client")
	if filter == "" {
		filter = domain.ClientFilterAll
	}

	agg, err := h.service.Get(r.Context(), date, filter)
	if err != nil {
		h.log.Error().Err(err).Str("date", dateStr).Str("client", filter).Msg("Failed to get aggregate")
		h.writeError(w, http.StatusInternalServerError, "Failed to get aggregate")
		return
	}
	if agg == nil {
		h.writeError(w, http.StatusNotFound, "No snapshots for "+filter+" on "+dateStr)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": agg,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRefresh handles POST /api/dashboard/{date}/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request, dateStr string) {
	date, err := domain.ParseDate(dateStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	if err := h.service.Refresh(r.Context(), date); err != nil {
		h.log.Error().Err(err).Str("date", dateStr).Msg("Failed to refresh aggregates")
		h.writeError(w, http.StatusInternalServerError, "Failed to refresh aggregates")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"date":      dateStr,
			"refreshed": true,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
