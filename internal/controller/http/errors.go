package http

import (
	"errors"
	"log/slog"
	"net/http"

	accountentity "github.com/vadim/neo-publish/internal/domain/account/entity"
	analysisentity "github.com/vadim/neo-publish/internal/domain/analysis/entity"
	analyticsentity "github.com/vadim/neo-publish/internal/domain/analytics/entity"
	taskentity "github.com/vadim/neo-publish/internal/domain/task/entity"
	"github.com/vadim/neo-publish/internal/httpx/response"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
)

var (
	badRequestErrors = []error{
		taskentity.ErrInvalidContentType,
		taskentity.ErrEmptyTitle,
		taskentity.ErrTitleTooLong,
		taskentity.ErrNoPlatforms,
		taskentity.ErrNoAccounts,
		taskentity.ErrInvalidPublishType,
		taskentity.ErrScheduledTimeInPast,
		taskentity.ErrInvalidStatus,
		taskentity.ErrNoActiveAccounts,
		taskentity.ErrInactiveAccounts,
		taskentity.ErrPlatformUncovered,
		taskentity.ErrTaskCompleted,
		taskentity.ErrTaskCancelled,
		taskentity.ErrTaskFinished,
		accountentity.ErrMissingCredential,
		accountentity.ErrInvalidStatus,
		analyticsentity.ErrEmptyCompetitorName,
		analysisentity.ErrMissingIdea,
		platform.ErrUnknownPlatform,
		queue.ErrUnknownQueue,
		queue.ErrMissingIdempotencyKey,
	}

	notFoundErrors = []error{
		taskentity.ErrTaskNotFound,
		accountentity.ErrAccountNotFound,
		analyticsentity.ErrWatchNotFound,
	}

	conflictErrors = []error{
		taskentity.ErrDuplicateTask,
		accountentity.ErrAccountExists,
		accountentity.ErrAccountInUse,
		analyticsentity.ErrWatchExists,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, taskentity.ErrSubmissionFailed):
		slog.Error("publish jobs could not be queued", "error", err)
		response.ServiceUnavailable(w, taskentity.ErrSubmissionFailed.Error())
	case errors.Is(err, queue.ErrBrokerUnavailable):
		slog.Error("job broker unavailable", "error", err)
		response.ServiceUnavailable(w, queue.ErrBrokerUnavailable.Error())
	case errors.Is(err, analysisentity.ErrAllProvidersFailed):
		slog.Error("analysis failed on every provider", "error", err)
		response.BadGateway(w, "所有AI模型调用失败")
	case isAny(err, notFoundErrors):
		response.NotFound(w, err.Error())
	case isAny(err, conflictErrors):
		response.Conflict(w, err.Error())
	case isAny(err, badRequestErrors):
		response.BadRequest(w, err.Error())
	default:
		slog.Error("request failed", "error", err)
		response.InternalError(w, "internal server error")
	}
}
