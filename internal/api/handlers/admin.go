package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jobtrellis/jobtrellis/internal/logger"
	"github.com/jobtrellis/jobtrellis/internal/metrics"
	"github.com/jobtrellis/jobtrellis/internal/queue"
	"github.com/jobtrellis/jobtrellis/internal/task"
)

// QueueSummary describes one queue's state and per-state task counts.
type QueueSummary struct {
	Name   string         `json:"name"`
	Paused bool           `json:"paused"`
	Counts map[string]int `json:"counts"`
}

// ErrorResponse is the JSON body returned for a failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ListResponse is the JSON body returned by AdminHandler.ListTasks.
type ListResponse struct {
	Tasks      []*task.Task `json:"tasks"`
	TotalCount int          `json:"total_count"`
}

// AdminHandler serves a read-only view over a set of named queues. There
// is no write path here: submission, pause/resume and retry all go
// through the CLI against the same on-disk queues.
type AdminHandler struct {
	queues map[string]*queue.Queue
}

// NewAdminHandler creates a handler over queues, keyed by queue name.
func NewAdminHandler(queues map[string]*queue.Queue) *AdminHandler {
	return &AdminHandler{queues: queues}
}

// HealthCheck handles GET /healthz.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	for name, q := range h.queues {
		if _, err := q.Paused(); err != nil {
			logger.Error().Err(err).Str("queue", name).Msg("health check: queue unreachable")
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"queue":  name,
				"error":  err.Error(),
			})
			return
		}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

// ListQueues handles GET /queues.
func (h *AdminHandler) ListQueues(w http.ResponseWriter, r *http.Request) {
	summaries := make([]QueueSummary, 0, len(h.queues))
	for name, q := range h.queues {
		paused, err := q.Paused()
		if err != nil {
			logger.Error().Err(err).Str("queue", name).Msg("failed to read queue state")
			h.respondError(w, http.StatusInternalServerError, "failed to list queues")
			return
		}
		counts, err := q.Summary("")
		if err != nil {
			logger.Error().Err(err).Str("queue", name).Msg("failed to summarize queue")
			h.respondError(w, http.StatusInternalServerError, "failed to list queues")
			return
		}
		byName := make(map[string]int, len(counts))
		for state, n := range counts {
			byName[state.String()] = n
			metrics.SetQueueDepth(name, state.String(), float64(n))
		}
		summaries = append(summaries, QueueSummary{Name: name, Paused: paused, Counts: byName})
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"queues": summaries})
}

// queueFromPath resolves {name} to one of the server's open queues.
func (h *AdminHandler) queueFromPath(r *http.Request) (*queue.Queue, bool) {
	name := chi.URLParam(r, "name")
	q, ok := h.queues[name]
	return q, ok
}

// ListTasks handles GET /queues/{name}/tasks, optionally filtered by
// ?state= and ?manager_id=.
func (h *AdminHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q, ok := h.queueFromPath(r)
	if !ok {
		h.respondError(w, http.StatusNotFound, "queue not found")
		return
	}

	f := queue.Filter{ManagerID: r.URL.Query().Get("manager_id")}
	if s := r.URL.Query().Get("state"); s != "" {
		st := task.ParseState(s)
		f.State = &st
	}

	tasks, err := q.Tasks(f)
	if err != nil {
		logger.Error().Err(err).Str("queue", q.Name).Msg("failed to list tasks")
		h.respondError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	h.respondJSON(w, http.StatusOK, ListResponse{Tasks: tasks, TotalCount: len(tasks)})
}

// GetTask handles GET /queues/{name}/tasks/{taskID}.
func (h *AdminHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	q, ok := h.queueFromPath(r)
	if !ok {
		h.respondError(w, http.StatusNotFound, "queue not found")
		return
	}

	taskID := chi.URLParam(r, "taskID")
	tasks, err := q.Tasks(queue.Filter{ID: taskID})
	if err != nil {
		logger.Error().Err(err).Str("queue", q.Name).Str("task_id", taskID).Msg("failed to look up task")
		h.respondError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if len(tasks) == 0 {
		h.respondError(w, http.StatusNotFound, "task not found")
		return
	}
	h.respondJSON(w, http.StatusOK, tasks[0])
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: http.StatusText(status), Message: message})
}
