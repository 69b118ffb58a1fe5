// Package handlers provides HTTP handlers for statement preprocessing.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/modules/preprocess"
	"github.com/aristath/custodian/internal/work"
	"github.com/rs/zerolog"
)

// DateRunner turns a date into a task running the whole pipeline.
type DateRunner interface {
	Spec(date time.Time, force bool) work.Spec
}

// Handler handles preprocessing HTTP requests
type Handler struct {
	preprocessor *preprocess.Preprocessor
	runner       DateRunner
	tasks        *work.Manager
	log          zerolog.Logger
}

// NewHandler creates a new preprocess handler
func NewHandler(
	preprocessor *preprocess.Preprocessor,
	runner DateRunner,
	tasks *work.Manager,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		preprocessor: preprocessor,
		runner:       runner,
		tasks:        tasks,
		log:          log.With().Str("handler", "preprocess").Logger(),
	}
}

type processRequest struct {
	Date  string `json:"date"`
	Force bool   `json:"force"`
}

// HandleProcess handles POST /api/preprocess. The date runs as a task; the
// response carries its id. A run of the same date already in flight is
// returned with 409 instead of starting a second one.
func (h *Handler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	date, err := domain.ParseDate(req.Date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	spec := h.runner.Spec(date, req.Force)
	if task, running := h.tasks.Running(spec.Type, spec.Description); running {
		h.writeData(w, http.StatusConflict, task.Snapshot())
		return
	}

	task := h.tasks.Start(spec)
	h.log.Info().
		Str("date", req.Date).
		Bool("force", req.Force).
		Str("task_id", task.ID()).
		Msg("Date processing started")

	h.writeData(w, http.StatusAccepted, task.Snapshot())
}

// HandleGetResult handles GET /api/preprocess/{date}
func (h *Handler) HandleGetResult(w http.ResponseWriter, r *http.Request, dateStr string) {
	date, err := domain.ParseDate(dateStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	result, err := h.preprocessor.LastResult(r.Context(), date)
	if err != nil {
		h.log.Error().Err(err).Str("date", dateStr).Msg("Failed to get batch result")
		h.writeError(w, http.StatusInternalServerError, "Failed to get batch result")
		return
	}

	state := h.preprocessor.State(date)
	if result == nil && state == preprocess.StateIdle {
		h.writeError(w, http.StatusNotFound, "Date was never processed")
		return
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"state":  state,
		"result": result,
	})
}

// HandleListRuns handles GET /api/preprocess?limit=N
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.preprocessor.Runs(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list batch results")
		h.writeError(w, http.StatusInternalServerError, "Failed to list batch results")
		return
	}
	if runs == nil {
		runs = []*preprocess.BatchResult{}
	}
	h.writeData(w, http.StatusOK, runs)
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
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
