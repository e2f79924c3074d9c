package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/neo-publish/internal/httpx/response"
	"github.com/vadim/neo-publish/internal/queue"
)

// QueueInspector exposes job broker state to operators
type QueueInspector interface {
	GetQueueHealth(ctx context.Context) (*queue.Health, error)
	GetJobStatus(ctx context.Context, n queue.Name, jobID string) (*queue.JobStatus, error)
	CancelJob(ctx context.Context, n queue.Name, jobID string) (bool, error)
	CleanQueues(ctx context.Context) error
}

// QueueHandler handles queue introspection requests
type QueueHandler struct {
	queues QueueInspector
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(q QueueInspector) *QueueHandler {
	return &QueueHandler{queues: q}
}

// RegisterRoutes registers queue routes
func (h *QueueHandler) RegisterRoutes(r chi.Router) {
	r.Route("/queues", func(r chi.Router) {
		r.Get("/health", h.Health())
		r.Delete("/", h.Clean())
		r.Get("/{queue}/jobs/{id}", h.Job())
		r.Delete("/{queue}/jobs/{id}", h.Cancel())
	})
}

// Health handles GET /queues/health
func (h *QueueHandler) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health, err := h.queues.GetQueueHealth(r.Context())
		if err != nil {
			handleDomainError(w, err)
			return
		}

		code := http.StatusOK
		if !health.IsHealthy {
			code = http.StatusServiceUnavailable
		}
		response.JSON(w, code, health)
	}
}

// Job handles GET /queues/{queue}/jobs/{id}
func (h *QueueHandler) Job() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := queue.ParseName(chi.URLParam(r, "queue"))
		if err != nil {
			handleDomainError(w, err)
			return
		}

		status, err := h.queues.GetJobStatus(r.Context(), n, chi.URLParam(r, "id"))
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if status == nil {
			response.NotFound(w, "job not found")
			return
		}

		response.OK(w, status)
	}
}

// Cancel handles DELETE /queues/{queue}/jobs/{id}
func (h *QueueHandler) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := queue.ParseName(chi.URLParam(r, "queue"))
		if err != nil {
			handleDomainError(w, err)
			return
		}

		cancelled, err := h.queues.CancelJob(r.Context(), n, chi.URLParam(r, "id"))
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if !cancelled {
			response.Conflict(w, "job already finished or not found")
			return
		}

		response.Message(w, http.StatusOK, map[string]bool{"cancelled": true}, "Job cancelled")
	}
}

// Clean handles DELETE /queues. Every job in every queue is dropped.
func (h *QueueHandler) Clean() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.queues.CleanQueues(r.Context()); err != nil {
			handleDomainError(w, err)
			return
		}

		response.Message(w, http.StatusOK, map[string]bool{"cleaned": true}, "Queues cleaned")
	}
}
