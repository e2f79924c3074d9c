package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/neo-publish/internal/domain/analysis/entity"
	"github.com/vadim/neo-publish/internal/httpx/response"
)

// AnalysisPolicy defines the interface for business idea analysis
type AnalysisPolicy interface {
	Verify(ctx context.Context, req entity.Request) (*entity.VerifiedAnalysis, error)
	Analyze(ctx context.Context, req entity.Request) (*entity.Analysis, error)
}

// AnalysisHandler handles HTTP requests for idea analysis
type AnalysisHandler struct {
	policy AnalysisPolicy
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(p AnalysisPolicy) *AnalysisHandler {
	return &AnalysisHandler{policy: p}
}

// RegisterRoutes registers analysis routes
func (h *AnalysisHandler) RegisterRoutes(r chi.Router) {
	r.Route("/business-plan", func(r chi.Router) {
		r.Post("/intelligent-analysis-verified", h.Verified())
		r.Post("/intelligent-analysis", h.Single())
	})
}

// Verified handles POST /business-plan/intelligent-analysis-verified
func (h *AnalysisHandler) Verified() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeIdea(w, r)
		if !ok {
			return
		}

		out, err := h.policy.Verify(r.Context(), req)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		response.OK(w, out)
	}
}

// Single handles POST /business-plan/intelligent-analysis
func (h *AnalysisHandler) Single() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeIdea(w, r)
		if !ok {
			return
		}

		out, err := h.policy.Analyze(r.Context(), req)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		response.OK(w, out)
	}
}

func decodeIdea(w http.ResponseWriter, r *http.Request) (entity.Request, bool) {
	var req entity.Request
	if !decodeAndValidate(w, r, &req) {
		return req, false
	}
	if err := req.Validate(); err != nil {
		handleDomainError(w, err)
		return req, false
	}
	return req, true
}
