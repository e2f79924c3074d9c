package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/neo-publish/internal/domain/task/entity"
	"github.com/vadim/neo-publish/internal/domain/task/policy"
	"github.com/vadim/neo-publish/internal/domain/task/service"
	"github.com/vadim/neo-publish/internal/httpx/middleware"
	"github.com/vadim/neo-publish/internal/httpx/response"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
)

// TaskPolicy defines the interface for publish task operations
// Interface is defined by consumer (handler), not provider (policy)
type TaskPolicy interface {
	CreateTask(ctx context.Context, in policy.CreateTaskInput) (*policy.CreateTaskOutput, error)
	ListTasks(ctx context.Context, in service.ListInput) (*service.ListOutput, error)
	GetTask(ctx context.Context, userID, id string) (*policy.TaskDetails, error)
	CancelTask(ctx context.Context, userID, id string) (*entity.Task, error)
}

// TaskHandler handles HTTP requests for publish tasks
type TaskHandler struct {
	policy TaskPolicy
	// createLimit guards task creation, e.g. with a rate limiter
	createLimit []func(http.Handler) http.Handler
}

// NewTaskHandler creates a new task handler. Middlewares only wrap task creation.
func NewTaskHandler(p TaskPolicy, createLimit ...func(http.Handler) http.Handler) *TaskHandler {
	return &TaskHandler{policy: p, createLimit: createLimit}
}

// RegisterRoutes registers task routes
func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Route("/social/tasks", func(r chi.Router) {
		r.With(h.createLimit...).Post("/", h.Create())
		r.Get("/", h.List())
		r.Get("/{id}", h.Get())
		r.Delete("/{id}", h.Cancel())
	})
}

// CreateTaskRequest represents the request body for submitting a task
type CreateTaskRequest struct {
	MvpID              string     `json:"mvpId"`
	ContentType        string     `json:"contentType" validate:"required,oneof=VIDEO IMAGE TEXT"`
	Title              string     `json:"title" validate:"required,notblank,max=200"`
	Description        string     `json:"description"`
	Tags               []string   `json:"tags"`
	MediaURLs          []string   `json:"mediaUrls" validate:"omitempty,dive,url"`
	TargetPlatforms    []string   `json:"targetPlatforms" validate:"required,min=1,dive,platform"`
	SelectedAccountIDs []string   `json:"selectedAccountIds" validate:"required,min=1,dive,notblank"`
	PublishType        string     `json:"publishType" validate:"omitempty,oneof=immediate scheduled"`
	ScheduledAt        *time.Time `json:"scheduledAt" validate:"required_if=PublishType scheduled"`
	IdempotencyKey     string     `json:"idempotencyKey" validate:"max=128"`
}

// TaskResponse is a task together with the jobs submitted for it
type TaskResponse struct {
	*entity.Task
	Jobs []*queue.JobHandle `json:"jobs,omitempty"`
}

// Create handles POST /social/tasks
func (h *TaskHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		var req CreateTaskRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		targets := make([]platform.Platform, len(req.TargetPlatforms))
		for i, s := range req.TargetPlatforms {
			p, err := platform.Parse(s)
			if err != nil {
				handleDomainError(w, err)
				return
			}
			targets[i] = p
		}

		publishType := entity.PublishType(req.PublishType)
		if publishType == "" {
			publishType = entity.PublishTypeImmediate
		}

		key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if key == "" {
			key = strings.TrimSpace(req.IdempotencyKey)
		}

		out, err := h.policy.CreateTask(r.Context(), policy.CreateTaskInput{
			UserID:             userID,
			MvpID:              req.MvpID,
			ContentType:        entity.ContentType(req.ContentType),
			Title:              strings.TrimSpace(req.Title),
			Description:        req.Description,
			Tags:               req.Tags,
			MediaURLs:          req.MediaURLs,
			TargetPlatforms:    targets,
			SelectedAccountIDs: req.SelectedAccountIDs,
			PublishType:        publishType,
			ScheduledAt:        req.ScheduledAt,
			IdempotencyKey:     key,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}

		body := TaskResponse{Task: out.Task, Jobs: out.Jobs}
		if out.Existing {
			response.Message(w, http.StatusOK, body, "Task already submitted")
			return
		}

		msg := "Task created and queued for publishing"
		if out.Task.PublishType == entity.PublishTypeScheduled && out.Task.ScheduledAt != nil {
			msg = fmt.Sprintf("Task scheduled for %s", out.Task.ScheduledAt.Format(time.RFC3339))
		}
		response.Message(w, http.StatusCreated, body, msg)
	}
}

// Pagination describes a page of results
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// ListTasksResponse represents the response for listing tasks
type ListTasksResponse struct {
	Tasks      []entity.Task `json:"tasks"`
	Pagination Pagination    `json:"pagination"`
}

// List handles GET /social/tasks
func (h *TaskHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		q := r.URL.Query()

		var status *entity.Status
		if s := q.Get("status"); s != "" {
			st := entity.Status(strings.ToUpper(s))
			status = &st
		}

		page, err := intParam(q.Get("page"))
		if err != nil {
			response.BadRequest(w, "invalid page")
			return
		}
		limit, err := intParam(q.Get("limit"))
		if err != nil {
			response.BadRequest(w, "invalid limit")
			return
		}

		out, err := h.policy.ListTasks(r.Context(), service.ListInput{
			UserID: userID,
			Status: status,
			MvpID:  q.Get("mvpId"),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}

		response.OK(w, ListTasksResponse{
			Tasks: out.Tasks,
			Pagination: Pagination{
				Page:       out.Page,
				Limit:      out.Limit,
				Total:      out.Total,
				TotalPages: out.TotalPages,
			},
		})
	}
}

// TaskDetailsResponse is a task with its publish logs and live job states
type TaskDetailsResponse struct {
	*entity.Task
	PublishLogs []entity.PublishLog     `json:"publishLogs"`
	QueueStatus []policy.JobQueueStatus `json:"queueStatus,omitempty"`
}

// Get handles GET /social/tasks/{id}
func (h *TaskHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		details, err := h.policy.GetTask(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			handleDomainError(w, err)
			return
		}

		logs := details.Logs
		if logs == nil {
			logs = []entity.PublishLog{}
		}

		response.OK(w, TaskDetailsResponse{
			Task:        details.Task,
			PublishLogs: logs,
			QueueStatus: details.QueueStatus,
		})
	}
}

// Cancel handles DELETE /social/tasks/{id}
func (h *TaskHandler) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		task, err := h.policy.CancelTask(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			handleDomainError(w, err)
			return
		}

		response.Message(w, http.StatusOK, task, "Task cancelled successfully")
	}
}

// intParam parses an optional non-negative integer query parameter
func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}
