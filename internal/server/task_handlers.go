package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/custodian/internal/work"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const wsWriteTimeout = 5 * time.Second

// TaskHandlers exposes the work manager's tasks.
type TaskHandlers struct {
	tasks *work.Manager
	log   zerolog.Logger
}

// NewTaskHandlers creates task handlers.
func NewTaskHandlers(tasks *work.Manager, log zerolog.Logger) *TaskHandlers {
	return &TaskHandlers{
		tasks: tasks,
		log:   log.With().Str("handler", "tasks").Logger(),
	}
}

// RegisterRoutes registers task routes. The websocket stream is registered
// separately by RegisterStreamRoutes, outside the request timeout.
func (h *TaskHandlers) RegisterRoutes(r chi.Router) {
	r.Get("/tasks", h.HandleList)
	r.Get("/tasks/{id}", h.HandleGet)
	r.Delete("/tasks/{id}", h.HandleCancel)
}

// RegisterStreamRoutes registers the long-lived task routes.
func (h *TaskHandlers) RegisterStreamRoutes(r chi.Router) {
	r.Get("/tasks/{id}/stream", h.HandleStream)
}

// HandleList handles GET /api/tasks
func (h *TaskHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	writeData(w, h.log, http.StatusOK, h.tasks.List())
}

// HandleGet handles GET /api/tasks/{id}
func (h *TaskHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, http.StatusNotFound, err.Error())
		return
	}
	writeData(w, h.log, http.StatusOK, task.Snapshot())
}

// HandleCancel handles DELETE /api/tasks/{id}
func (h *TaskHandlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.tasks.Cancel(id); err != nil {
		writeError(w, h.log, http.StatusNotFound, err.Error())
		return
	}
	h.log.Info().Str("task_id", id).Msg("Task cancellation requested")

	task, err := h.tasks.Get(id)
	if err != nil {
		writeError(w, h.log, http.StatusNotFound, err.Error())
		return
	}
	writeData(w, h.log, http.StatusAccepted, task.Snapshot())
}

// HandleStream handles GET /api/tasks/{id}/stream. It upgrades to a
// websocket, sends the current snapshot, then every event of the task until
// it finishes.
func (h *TaskHandlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	task, err := h.tasks.Get(id)
	if err != nil {
		writeError(w, h.log, http.StatusNotFound, err.Error())
		return
	}

	updates, unsubscribe, err := h.tasks.Subscribe(id)
	if err != nil {
		writeError(w, h.log, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer unsubscribe()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		h.log.Warn().Err(err).Str("task_id", id).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	// Clients only listen; reading is needed to process control frames.
	ctx := conn.CloseRead(r.Context())

	if err := h.write(ctx, conn, map[string]interface{}{"type": "snapshot", "task": task.Snapshot()}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "task finished")
				return
			}
			if err := h.write(ctx, conn, map[string]interface{}{"type": "event", "event": data}); err != nil {
				return
			}
		}
	}
}

func (h *TaskHandlers) write(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	err := wsjson.Write(ctx, conn, v)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.Debug().Err(err).Msg("Websocket write failed")
	}
	return err
}
