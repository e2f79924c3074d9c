package dao

import (
	"context"

	"github.com/vadim/neo-publish/internal/domain/task/entity"
	"github.com/vadim/neo-publish/internal/platform"
)

// TaskFilter contains filters for listing tasks
type TaskFilter struct {
	UserID string
	Status *entity.Status
	MvpID  string
}

// ListOptions contains pagination options
type ListOptions struct {
	Limit  int
	Offset int
}

// TaskRepository defines data access for publish tasks
type TaskRepository interface {
	// CreateWithJobs inserts the task and its jobs in one transaction
	CreateWithJobs(ctx context.Context, task *entity.Task, jobs []entity.Job) error

	// GetByID returns nil, nil if the task does not exist
	GetByID(ctx context.Context, id string) (*entity.Task, error)

	// GetByIdempotencyKey returns nil, nil if the user never submitted the key
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*entity.Task, error)

	List(ctx context.Context, filter TaskFilter, opts ListOptions) ([]entity.Task, error)
	Count(ctx context.Context, filter TaskFilter) (int64, error)

	// MarkProcessing moves a PENDING task to PROCESSING and reports whether it did
	MarkProcessing(ctx context.Context, id string) (bool, error)

	// MarkFailed fails a non-terminal task with the given reason
	MarkFailed(ctx context.Context, id, reason string) error

	// Cancel moves a non-terminal task to CANCELLED. It returns nil when the task
	// was already terminal.
	Cancel(ctx context.Context, id string) (*entity.Task, error)

	// RecordResult stores the publish log of one job and advances the task counters.
	// Counters move only if the log did not exist yet and the task is not terminal;
	// applied reports whether that happened.
	RecordResult(ctx context.Context, log *entity.PublishLog) (task *entity.Task, applied bool, err error)
}

// JobRepository defines data access for task jobs
type JobRepository interface {
	ListByTask(ctx context.Context, taskID string) ([]entity.Job, error)

	// PlatformStats aggregates job outcomes per task and platform
	PlatformStats(ctx context.Context, taskIDs []string) (map[string]map[platform.Platform]entity.PlatformStat, error)
}

// LogRepository defines data access for publish logs
type LogRepository interface {
	ListByTask(ctx context.Context, taskID string) ([]entity.PublishLog, error)
}
