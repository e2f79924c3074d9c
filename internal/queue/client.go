package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMissingIdempotencyKey is returned for publish jobs without a key
var ErrMissingIdempotencyKey = errors.New("publish job requires an idempotency key")

// Health thresholds; a queue at or above either is reported unhealthy
const (
	MaxHealthyWaiting = 200
	MaxHealthyActive  = 50
)

// QueueHealth is the health snapshot of one queue
type QueueHealth struct {
	Name Name `json:"name"`
	Counts
	IsHealthy bool `json:"isHealthy"`
}

// Health is the aggregated snapshot of all queues
type Health struct {
	Queues    []QueueHealth `json:"queues"`
	IsHealthy bool          `json:"isHealthy"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// Healthy classifies a queue by its backlog
func Healthy(waiting, active int) bool {
	return waiting < MaxHealthyWaiting && active < MaxHealthyActive
}

// Client exposes typed operations over the registry's queues
type Client struct {
	reg *Registry
	now func() time.Time
}

// NewClient creates a client backed by reg
func NewClient(reg *Registry) *Client {
	return &Client{reg: reg, now: time.Now}
}

// AddPublishJob submits one (platform, account) publish job.
// Scheduled jobs become visible to workers at ScheduledAt.
func (c *Client) AddPublishJob(ctx context.Context, data PublishJobData) (*JobHandle, error) {
	if data.IdempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}

	q, err := c.reg.Queue(Publish)
	if err != nil {
		return nil, err
	}

	var opts []AddOption
	if data.PublishType == "scheduled" && data.ScheduledAt != nil && data.ScheduledAt.After(c.now()) {
		opts = append(opts, WithProcessAt(*data.ScheduledAt))
	}

	return q.Add(ctx, PublishJobID(data.IdempotencyKey, data.Platform, data.AccountID), data, opts...)
}

// AddVerifyJob submits a credentials check; at most one is live per account
func (c *Client) AddVerifyJob(ctx context.Context, data VerifyJobData) (*JobHandle, error) {
	q, err := c.reg.Queue(Verify)
	if err != nil {
		return nil, err
	}
	return q.Add(ctx, VerifyJobID(data.AccountID), data, ReplaceFinished())
}

// AddTrendJob submits a trend collection run. Without an idempotency key
// every call creates a new job.
func (c *Client) AddTrendJob(ctx context.Context, data TrendJobData) (*JobHandle, error) {
	q, err := c.reg.Queue(Trend)
	if err != nil {
		return nil, err
	}

	if data.IdempotencyKey == "" {
		return q.Add(ctx, "trend:"+uuid.New().String(), data)
	}
	return q.Add(ctx, "trend:"+data.IdempotencyKey, data, ReplaceFinished())
}

// AddCompetitorJob submits a monitoring run; the same competitor never has two live jobs
func (c *Client) AddCompetitorJob(ctx context.Context, data CompetitorJobData) (*JobHandle, error) {
	q, err := c.reg.Queue(Competitor)
	if err != nil {
		return nil, err
	}
	return q.Add(ctx, CompetitorJobID(data.UserID, data.Platform, data.CompetitorName), data, ReplaceFinished())
}

// AddRepeatableJob registers a recurring job on the given queue
func (c *Client) AddRepeatableJob(ctx context.Context, n Name, data any, cron string) (string, error) {
	q, err := c.reg.Queue(n)
	if err != nil {
		return "", err
	}
	return q.AddRepeatable(ctx, data, cron)
}

// GetJobStatus returns nil when the job does not exist
func (c *Client) GetJobStatus(ctx context.Context, n Name, jobID string) (*JobStatus, error) {
	q, err := c.reg.Queue(n)
	if err != nil {
		return nil, err
	}
	return q.Status(ctx, jobID)
}

// CancelJob reports whether a job was cancelled
func (c *Client) CancelJob(ctx context.Context, n Name, jobID string) (bool, error) {
	q, err := c.reg.Queue(n)
	if err != nil {
		return false, err
	}
	return q.Cancel(ctx, jobID)
}

// GetQueueHealth collects counts of every queue and classifies them
func (c *Client) GetQueueHealth(ctx context.Context) (*Health, error) {
	h := &Health{IsHealthy: true, CheckedAt: c.now()}

	for _, n := range Names() {
		q, err := c.reg.Queue(n)
		if err != nil {
			return nil, err
		}
		counts, err := q.Counts(ctx)
		if err != nil {
			return nil, err
		}

		qh := QueueHealth{
			Name:      n,
			Counts:    counts,
			IsHealthy: Healthy(counts.Waiting, counts.Active),
		}
		h.Queues = append(h.Queues, qh)
		h.IsHealthy = h.IsHealthy && qh.IsHealthy
	}

	return h, nil
}

// CleanQueues purges all queues
func (c *Client) CleanQueues(ctx context.Context) error {
	var errs []error
	for _, n := range Names() {
		q, err := c.reg.Queue(n)
		if err != nil {
			return err
		}
		if err := q.Purge(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("cleaning queues: %w", errors.Join(errs...))
	}
	return nil
}

// Registry returns the underlying registry
func (c *Client) Registry() *Registry {
	return c.reg
}

// Close releases the broker
func (c *Client) Close() error {
	return c.reg.Close()
}
