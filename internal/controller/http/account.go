package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vadim/neo-publish/internal/domain/account/entity"
	"github.com/vadim/neo-publish/internal/domain/account/policy"
	"github.com/vadim/neo-publish/internal/httpx/middleware"
	"github.com/vadim/neo-publish/internal/httpx/response"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
)

// AccountPolicy defines the interface for social account operations
type AccountPolicy interface {
	AddAccount(ctx context.Context, in policy.AddAccountInput) (*policy.AddAccountOutput, error)
	GetAccount(ctx context.Context, userID, id string) (*entity.Account, error)
	ListAccounts(ctx context.Context, in policy.ListAccountsInput) ([]entity.Account, error)
	UpdateCookie(ctx context.Context, userID, id, cookie string) (*policy.AddAccountOutput, error)
	RequestVerification(ctx context.Context, userID, id string) (*queue.JobHandle, error)
	DeleteAccount(ctx context.Context, userID, id string) error
}

// AccountHandler handles HTTP requests for linked social accounts
type AccountHandler struct {
	policy AccountPolicy
	logger *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(p AccountPolicy, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{policy: p, logger: logger}
}

// RegisterRoutes registers account routes
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Route("/social/accounts", func(r chi.Router) {
		r.Get("/", h.List())
		r.Post("/", h.Create())
		r.Get("/{id}", h.Get())
		r.Patch("/{id}", h.UpdateCookie())
		r.Delete("/{id}", h.Delete())
		r.Post("/{id}/verify", h.Verify())
	})
}

// List handles GET /social/accounts
func (h *AccountHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		in := policy.ListAccountsInput{UserID: userID}
		q := r.URL.Query()
		if s := q.Get("platform"); s != "" {
			p, err := platform.Parse(s)
			if err != nil {
				handleDomainError(w, err)
				return
			}
			in.Platform = &p
		}
		if s := q.Get("status"); s != "" {
			st := entity.Status(strings.ToUpper(s))
			in.Status = &st
		}

		accounts, err := h.policy.ListAccounts(r.Context(), in)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		response.OK(w, accounts)
	}
}

// CreateAccountRequest represents the request body for linking an account
type CreateAccountRequest struct {
	Platform          string `json:"platform" validate:"required,platform"`
	PlatformAccountID string `json:"platformAccountId" validate:"required,notblank,max=128"`
	PlatformUsername  string `json:"platformUsername" validate:"max=128"`
	CookieString      string `json:"cookieString" validate:"required,notblank"`
}

// AccountResponse is an account with the verification job queued for it
type AccountResponse struct {
	*entity.Account
	VerifyJob *queue.JobHandle `json:"verifyJob,omitempty"`
}

// Create handles POST /social/accounts
func (h *AccountHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		var req CreateAccountRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		p, err := platform.Parse(req.Platform)
		if err != nil {
			handleDomainError(w, err)
			return
		}

		out, err := h.policy.AddAccount(r.Context(), policy.AddAccountInput{
			UserID:            userID,
			Platform:          p,
			PlatformAccountID: strings.TrimSpace(req.PlatformAccountID),
			PlatformUsername:  strings.TrimSpace(req.PlatformUsername),
			Cookie:            req.CookieString,
		})
		h.writeAccount(w, out, err, http.StatusCreated)
	}
}

// Get handles GET /social/accounts/{id}
func (h *AccountHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		acc, err := h.policy.GetAccount(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			handleDomainError(w, err)
			return
		}

		response.OK(w, acc)
	}
}

// UpdateCookieRequest represents the request body for replacing a cookie
type UpdateCookieRequest struct {
	CookieString string `json:"cookieString" validate:"required,notblank"`
}

// UpdateCookie handles PATCH /social/accounts/{id}
func (h *AccountHandler) UpdateCookie() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		var req UpdateCookieRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		out, err := h.policy.UpdateCookie(r.Context(), userID, chi.URLParam(r, "id"), req.CookieString)
		h.writeAccount(w, out, err, http.StatusOK)
	}
}

// Delete handles DELETE /social/accounts/{id}
func (h *AccountHandler) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		if err := h.policy.DeleteAccount(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
			handleDomainError(w, err)
			return
		}

		response.NoContent(w)
	}
}

// Verify handles POST /social/accounts/{id}/verify
func (h *AccountHandler) Verify() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Unauthorized(w, "Unauthorized")
			return
		}

		job, err := h.policy.RequestVerification(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			handleDomainError(w, err)
			return
		}

		response.Accepted(w, job)
	}
}

// writeAccount answers with the stored account. An account whose
// verification could not be queued is still reported as stored.
func (h *AccountHandler) writeAccount(w http.ResponseWriter, out *policy.AddAccountOutput, err error, code int) {
	if err != nil && (out == nil || out.Account == nil || !errors.Is(err, queue.ErrBrokerUnavailable)) {
		handleDomainError(w, err)
		return
	}

	body := AccountResponse{Account: out.Account, VerifyJob: out.Job}
	if err != nil {
		h.logger.Warn("account stored without verification job", "account_id", out.Account.ID, "error", err)
		response.Message(w, code, body, "账号已保存，验证任务排队失败，请稍后重试")
		return
	}

	response.JSON(w, code, body)
}
