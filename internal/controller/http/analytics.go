package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/neo-publish/internal/domain/analytics/entity"
	"github.com/vadim/neo-publish/internal/domain/analytics/policy"
	"github.com/vadim/neo-publish/internal/httpx/middleware"
	"github.com/vadim/neo-publish/internal/httpx/response"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
)

// AnalyticsPolicy defines the interface for trend and competitor operations
type AnalyticsPolicy interface {
	RequestTrends(ctx context.Context, in policy.RequestTrendsInput) (*queue.JobHandle, error)
	ListTrends(ctx context.Context, p *platform.Platform, limit int) ([]entity.TrendItem, error)
	WatchCompetitor(ctx context.Context, in policy.WatchCompetitorInput) (*policy.WatchCompetitorOutput, error)
	ListWatches(ctx context.Context, userID string) ([]entity.CompetitorWatch, error)
}

// AnalyticsHandler handles HTTP requests for trends and competitor monitoring
type AnalyticsHandler struct {
	policy AnalyticsPolicy
	logger *slog.Logger
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(p AnalyticsPolicy, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{policy: p, logger: logger}
}

// RegisterRoutes registers analytics routes
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Post("/trends", h.RequestTrends())
		r.Get("/trends", h.ListTrends())
		r.Post("/competitors", h.Watch())
		r.Get("/competitors", h.ListWatches())
	})
}

// RequestTrendsRequest represents the request body for a trend collection run
type RequestTrendsRequest struct {
	Platform string `json:"platform" validate:"required,platform"`
	Keyword  string `json:"keyword" validate:"max=100"`
	Category string `json:"category" validate:"max=100"`
}

// RequestTrends handles POST /analytics/trends
func (h *AnalyticsHandler) RequestTrends() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		var req RequestTrendsRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		p, err := platform.Parse(req.Platform)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		job, err := h.policy.RequestTrends(r.Context(), policy.RequestTrendsInput{
			UserID:         userID,
			Platform:       p,
			Keyword:        req.Keyword,
			Category:       req.Category,
			IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}

		response.Accepted(w, job)
	}
}

// ListTrends handles GET /analytics/trends
func (h *AnalyticsHandler) ListTrends() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var pl *platform.Platform
		if s := q.Get("platform"); s != "" {
			p, err := platform.Parse(s)
			if err != nil {
				handleDomainError(w, err)
				return
			}
			pl = &p
		}

		limit, err := intParam(q.Get("limit"))
		if err != nil {
			response.BadRequest(w, "invalid limit")
			return
		}

		trends, err := h.policy.ListTrends(r.Context(), pl, limit)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if trends == nil {
			trends = []entity.TrendItem{}
		}

		response.OK(w, trends)
	}
}

// WatchCompetitorRequest represents the request body for monitoring a competitor
type WatchCompetitorRequest struct {
	CompetitorName string `json:"competitorName" validate:"required,notblank,max=100"`
	Platform       string `json:"platform" validate:"required,platform"`
	AccountURL     string `json:"accountUrl" validate:"omitempty,url"`
}

// WatchResponse is a watch with the monitoring job queued for it
type WatchResponse struct {
	*entity.CompetitorWatch
	Job *queue.JobHandle `json:"job,omitempty"`
}

// Watch handles POST /analytics/competitors
func (h *AnalyticsHandler) Watch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		var req WatchCompetitorRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		p, err := platform.Parse(req.Platform)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		out, err := h.policy.WatchCompetitor(r.Context(), policy.WatchCompetitorInput{
			UserID:         userID,
			CompetitorName: req.CompetitorName,
			Platform:       p,
			AccountURL:     req.AccountURL,
		})
		if err != nil && (out == nil || out.Watch == nil || !errors.Is(err, queue.ErrBrokerUnavailable)) {
			handleDomainError(w, err)
			return
		}

		code := http.StatusCreated
		if out.Existing {
			code = http.StatusOK
		}

		body := WatchResponse{CompetitorWatch: out.Watch, Job: out.Job}
		if err != nil {
			h.logger.Warn("watch stored without monitoring job", "watch_id", out.Watch.ID, "error", err)
			response.Message(w, code, body, "监控已保存，监控任务排队失败，请稍后重试")
			return
		}

		response.JSON(w, code, body)
	}
}

// ListWatches handles GET /analytics/competitors
func (h *AnalyticsHandler) ListWatches() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		watches, err := h.policy.ListWatches(r.Context(), userID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if watches == nil {
			watches = []entity.CompetitorWatch{}
		}

		response.OK(w, watches)
	}
}
