// Package handlers provides HTTP handlers for portfolio snapshots.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// AggregateRefresher recomputes the cached aggregates of a date once its
// snapshots changed.
type AggregateRefresher interface {
	Refresh(ctx context.Context, date time.Time) error
}

// Handler handles portfolio HTTP requests
type Handler struct {
	service   *portfolio.Service
	refresher AggregateRefresher
	log       zerolog.Logger
}

// NewHandler creates a new portfolio handler. refresher may be nil.
func NewHandler(
	service *portfolio.Service,
	refresher AggregateRefresher,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:   service,
		refresher: refresher,
		log:       log.With().Str("handler", "portfolio").Logger(),
	}
}

type calculateRequest struct {
	Date   string `json:"date"`
	Client string `json:"client,omitempty"`
}

// HandleCalculate handles POST /api/portfolio/calculate
func (h *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	var clients []string
	if req.Client != "" {
		clients = append(clients, req.Client)
	}

	result, err := h.service.CalculateDate(r.Context(), date, clients...)
	if err != nil {
		h.log.Error().Err(err).Str("date", req.Date).Msg("Failed to calculate snapshots")
		status := http.StatusInternalServerError
		if result == nil && !domain.IsFatal(err) {
			status = http.StatusUnprocessableEntity
		}
		h.writeError(w, status, err.Error())
		return
	}

	refreshed := false
	if h.refresher != nil && len(result.Succeeded()) > 0 {
		if err := h.refresher.Refresh(r.Context(), date); err != nil {
			h.log.Error().Err(err).Str("date", req.Date).Msg("Failed to refresh aggregates")
		} else {
			refreshed = true
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"result":              result,
			"aggregate_refreshed": refreshed,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetSnapshot handles GET /api/portfolio/{client}/snapshots/{date}
func (h *Handler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request, client, dateStr string) {
	date, err := domain.ParseDate(dateStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	snap, err := h.service.Snapshot(r.Context(), client, date)
	if err != nil {
		h.log.Error().Err(err).Str("client", client).Str("date", dateStr).Msg("Failed to get snapshot")
		h.writeError(w, http.StatusInternalServerError, "Failed to get snapshot")
		return
	}
	if snap == nil {
		h.writeError(w, http.StatusNotFound, "Snapshot not found")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": snap,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetHistory handles GET /api/portfolio/{client}/history
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request, client string) {
	points, err := h.service.History(r.Context(), client)
	if err != nil {
		h.log.Error().Err(err).Str("client", client).Msg("Failed to get history")
		h.writeError(w, http.StatusInternalServerError, "Failed to get history")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"client_code": client,
			"history":     points,
			"count":       len(points),
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
