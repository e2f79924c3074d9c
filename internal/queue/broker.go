package queue

import (
	"context"
	"errors"
	"time"
)

// ErrBrokerUnavailable marks failures talking to the broker
var ErrBrokerUnavailable = errors.New("job broker unavailable")

// EnqueueRequest describes a job submission at the broker level.
// Queue is the physical (prefixed) queue name.
type EnqueueRequest struct {
	Queue     string
	Type      string
	ID        string
	Payload   []byte
	Policy    Policy
	ProcessAt time.Time
}

// JobInfo is the broker's view of a stored job
type JobInfo struct {
	ID            string
	Queue         string
	Type          string
	State         JobState
	Retried       int
	MaxRetry      int
	LastErr       string
	NextProcessAt time.Time
	CompletedAt   time.Time
	LastFailedAt  time.Time
	Result        []byte
	Duplicate     bool
}

// FinishedAt returns when the job reached its terminal state
func (j JobInfo) FinishedAt() time.Time {
	if j.State == JobFailed {
		return j.LastFailedAt
	}
	return j.CompletedAt
}

// Counts aggregates jobs of a queue by state
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Delayed   int `json:"delayed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Broker is the durable job store the queues are built on
type Broker interface {
	// Enqueue stores a job. A job whose ID already exists is not stored
	// again; its current info is returned with Duplicate set.
	Enqueue(ctx context.Context, req EnqueueRequest) (*JobInfo, error)

	// Lookup returns nil, nil when the job does not exist
	Lookup(ctx context.Context, queue, id string) (*JobInfo, error)

	// Cancel removes a waiting/delayed job or interrupts an active one.
	// It returns false when there was nothing to cancel.
	Cancel(ctx context.Context, queue, id string) (bool, error)

	// Remove deletes a job that is not active. Missing jobs are not an error.
	Remove(ctx context.Context, queue, id string) error

	// ListFinished returns up to limit completed or failed jobs
	ListFinished(ctx context.Context, queue string, state JobState, limit int) ([]JobInfo, error)

	Counts(ctx context.Context, queue string) (Counts, error)

	// Schedule registers a recurring job and returns the entry id
	Schedule(ctx context.Context, req EnqueueRequest, cron string) (string, error)

	// Purge deletes the queue and every job in it
	Purge(ctx context.Context, queue string) error

	Close() error
}
