// Package worker consumes the four job queues.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	accountentity "github.com/vadim/neo-publish/internal/domain/account/entity"
	analyticsentity "github.com/vadim/neo-publish/internal/domain/analytics/entity"
	taskentity "github.com/vadim/neo-publish/internal/domain/task/entity"
	taskpolicy "github.com/vadim/neo-publish/internal/domain/task/policy"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
)

// Progress checkpoints written while a publish job runs
const (
	progressStarted   = 10
	progressPublished = 60
	progressDone      = 100
)

// TaskTracker advances publish tasks
type TaskTracker interface {
	StartJob(ctx context.Context, taskID string) (*taskentity.Task, error)
	RecordPublishResult(ctx context.Context, r taskpolicy.PublishResult) (*taskentity.Task, error)
}

// AccountStore resolves and updates account credentials
type AccountStore interface {
	Credentials(ctx context.Context, id string) (*accountentity.Account, string, error)
	ApplyVerification(ctx context.Context, id string, v *platform.Verification) (accountentity.Status, error)
	MarkVerificationFailed(ctx context.Context, id string) error
}

// AnalyticsStore persists collected analytics
type AnalyticsStore interface {
	StoreTrends(ctx context.Context, pl platform.Platform, trends []platform.Trend) ([]analyticsentity.TrendItem, error)
	GetWatch(ctx context.Context, id string) (*analyticsentity.CompetitorWatch, error)
	RecordSnapshot(ctx context.Context, watchID string, m *platform.CompetitorMetrics) (*analyticsentity.CompetitorSnapshot, error)
}

// Adapters resolves the adapter of a platform
type Adapters interface {
	For(p platform.Platform) (platform.Adapter, error)
}

// JobRecorder observes handler runs
type JobRecorder interface {
	JobProcessed(n queue.Name, d time.Duration, err error)
}

// ErrPermanent marks failures that retrying cannot fix
var ErrPermanent = errors.New("permanent job failure")

// Processor holds the handlers of every queue
type Processor struct {
	tasks     TaskTracker
	accounts  AccountStore
	analytics AnalyticsStore
	adapters  Adapters
	recorder  JobRecorder
	logger    *slog.Logger
	now       func() time.Time
	// attempt returns the retries already made and the retry ceiling
	attempt func(ctx context.Context) (retried, maxRetry int)
}

// Option configures a Processor
type Option func(*Processor)

// WithRecorder reports handler runs to rec
func WithRecorder(rec JobRecorder) Option {
	return func(p *Processor) {
		p.recorder = rec
	}
}

// NewProcessor creates the queue handlers
func NewProcessor(tasks TaskTracker, accounts AccountStore, analytics AnalyticsStore, adapters Adapters, logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		tasks:     tasks,
		accounts:  accounts,
		analytics: analytics,
		adapters:  adapters,
		logger:    logger,
		now:       time.Now,
		attempt:   asynqAttempt,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handler returns the handler of queue n
func (p *Processor) Handler(n queue.Name) (asynq.Handler, error) {
	var h asynq.HandlerFunc
	switch n {
	case queue.Publish:
		h = p.HandlePublish
	case queue.Verify:
		h = p.HandleVerify
	case queue.Trend:
		h = p.HandleTrend
	case queue.Competitor:
		h = p.HandleCompetitor
	default:
		return nil, fmt.Errorf("%w: %q", queue.ErrUnknownQueue, n)
	}
	return p.observe(n, h), nil
}

func (p *Processor) observe(n queue.Name, h asynq.HandlerFunc) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := p.now()
		err := h(ctx, t)
		if p.recorder != nil {
			p.recorder.JobProcessed(n, p.now().Sub(start), err)
		}
		return err
	})
}

// HandlePublish publishes one piece of content through one account
func (p *Processor) HandlePublish(ctx context.Context, t *asynq.Task) error {
	var data queue.PublishJobData
	if err := decode(t, &data); err != nil {
		return err
	}
	log := p.logger.With("task_id", data.TaskID, "account_id", data.AccountID, "platform", data.Platform)

	if _, err := p.tasks.StartJob(ctx, data.TaskID); err != nil {
		if errors.Is(err, taskentity.ErrTaskCancelled) ||
			errors.Is(err, taskentity.ErrTaskFinished) ||
			errors.Is(err, taskentity.ErrTaskNotFound) {
			log.Info("publish job skipped", "reason", err.Error())
			return report(t, progressDone, map[string]string{"skipped": err.Error()})
		}
		return fmt.Errorf("starting task %s: %w", data.TaskID, err)
	}

	if err := report(t, progressStarted, nil); err != nil {
		log.Warn("failed to write job progress", "error", err)
	}

	published, err := p.publish(ctx, data)
	if err != nil {
		permanent := errors.Is(err, ErrPermanent)
		if permanent || p.finalAttempt(ctx) {
			if _, recErr := p.tasks.RecordPublishResult(ctx, taskpolicy.PublishResult{
				TaskID:       data.TaskID,
				AccountID:    data.AccountID,
				Platform:     data.Platform,
				ErrorMessage: err.Error(),
			}); recErr != nil {
				log.Error("failed to record publish failure", "error", recErr)
				return fmt.Errorf("recording failure: %w", recErr)
			}
		}
		log.Warn("publish attempt failed", "error", err, "permanent", permanent)
		if permanent {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	if err := report(t, progressPublished, nil); err != nil {
		log.Warn("failed to write job progress", "error", err)
	}

	publishedAt := published.PublishedAt
	if _, err := p.tasks.RecordPublishResult(ctx, taskpolicy.PublishResult{
		TaskID:      data.TaskID,
		AccountID:   data.AccountID,
		Platform:    data.Platform,
		Success:     true,
		PublishURL:  published.PublishURL,
		PublishedAt: &publishedAt,
	}); err != nil {
		return fmt.Errorf("recording success: %w", err)
	}

	log.Info("content published", "url", published.PublishURL)
	return report(t, progressDone, map[string]any{
		"publishUrl":  published.PublishURL,
		"publishedAt": published.PublishedAt,
	})
}

func (p *Processor) publish(ctx context.Context, data queue.PublishJobData) (*platform.PublishResult, error) {
	acc, cookie, err := p.accounts.Credentials(ctx, data.AccountID)
	if errors.Is(err, accountentity.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	if !acc.IsActive() {
		return nil, fmt.Errorf("%w: %w (%s)", ErrPermanent, accountentity.ErrAccountInactive, acc.Status)
	}

	adapter, err := p.adapters.For(data.Platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
	}

	res, err := adapter.Publish(ctx, platform.PublishRequest{
		AccountID:         acc.ID,
		PlatformAccountID: acc.PlatformAccountID,
		Cookie:            cookie,
		Content:           data.Content,
	})
	if errors.Is(err, platform.ErrCredentialsRejected) {
		return nil, fmt.Errorf("%w: %w", ErrPermanent, err)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// HandleVerify checks the stored credentials of an account
func (p *Processor) HandleVerify(ctx context.Context, t *asynq.Task) error {
	var data queue.VerifyJobData
	if err := decode(t, &data); err != nil {
		return err
	}
	log := p.logger.With("account_id", data.AccountID, "platform", data.Platform)

	v, err := p.verify(ctx, data)
	if err != nil {
		if errors.Is(err, accountentity.ErrAccountNotFound) {
			log.Info("verification skipped, account removed")
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		if p.finalAttempt(ctx) {
			if markErr := p.accounts.MarkVerificationFailed(ctx, data.AccountID); markErr != nil {
				log.Error("failed to mark verification failed", "error", markErr)
			}
		}
		log.Warn("verification attempt failed", "error", err)
		return err
	}

	status, err := p.accounts.ApplyVerification(ctx, data.AccountID, v)
	if err != nil {
		return fmt.Errorf("storing verification: %w", err)
	}

	log.Info("account verified", "status", status)
	return report(t, progressDone, map[string]any{
		"valid":  v.Valid,
		"status": status,
	})
}

func (p *Processor) verify(ctx context.Context, data queue.VerifyJobData) (*platform.Verification, error) {
	acc, cookie, err := p.accounts.Credentials(ctx, data.AccountID)
	if err != nil {
		return nil, err
	}
	adapter, err := p.adapters.For(acc.Platform)
	if err != nil {
		return nil, err
	}
	return adapter.VerifyCredentials(ctx, cookie)
}

// HandleTrend collects and stores the trends of one platform
func (p *Processor) HandleTrend(ctx context.Context, t *asynq.Task) error {
	var data queue.TrendJobData
	if err := decode(t, &data); err != nil {
		return err
	}

	adapter, err := p.adapters.For(data.Platform)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	trends, err := adapter.CollectTrends(ctx, platform.TrendQuery{
		Keyword:  data.Keyword,
		Category: data.Category,
	})
	if err != nil {
		return fmt.Errorf("collecting trends on %s: %w", data.Platform, err)
	}

	top, err := p.analytics.StoreTrends(ctx, data.Platform, trends)
	if err != nil {
		return fmt.Errorf("storing trends: %w", err)
	}

	p.logger.Info("trends collected", "platform", data.Platform, "keyword", data.Keyword, "count", len(trends))
	return report(t, progressDone, map[string]any{
		"platform": data.Platform,
		"count":    len(trends),
		"top":      top,
	})
}

// HandleCompetitor snapshots a watched competitor
func (p *Processor) HandleCompetitor(ctx context.Context, t *asynq.Task) error {
	var data queue.CompetitorJobData
	if err := decode(t, &data); err != nil {
		return err
	}
	log := p.logger.With("watch_id", data.WatchID, "platform", data.Platform)

	watch, err := p.analytics.GetWatch(ctx, data.WatchID)
	if errors.Is(err, analyticsentity.ErrWatchNotFound) {
		log.Info("competitor watch removed")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("loading watch: %w", err)
	}

	adapter, err := p.adapters.For(watch.Platform)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	metrics, err := adapter.CollectCompetitor(ctx, platform.CompetitorQuery{
		Name:       watch.CompetitorName,
		AccountURL: watch.AccountURL,
	})
	if err != nil {
		return fmt.Errorf("collecting competitor %s: %w", watch.CompetitorName, err)
	}

	snapshot, err := p.analytics.RecordSnapshot(ctx, watch.ID, metrics)
	if err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}

	log.Info("competitor snapshot stored", "competitor", watch.CompetitorName, "followers", snapshot.FollowerCount)
	return report(t, progressDone, snapshot)
}

func (p *Processor) finalAttempt(ctx context.Context) bool {
	retried, maxRetry := p.attempt(ctx)
	return retried >= maxRetry
}

func asynqAttempt(ctx context.Context) (int, int) {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return 0, 0
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return retried, retried
	}
	return retried, maxRetry
}

func decode(t *asynq.Task, dst any) error {
	if err := json.Unmarshal(t.Payload(), dst); err != nil {
		return fmt.Errorf("decoding %s payload: %w: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

// report stores progress and optional data as the job result
func report(t *asynq.Task, progress int, data any) error {
	w := t.ResultWriter()
	if w == nil {
		return nil
	}

	res := queue.JobResult{Progress: progress}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encoding job result: %w", err)
		}
		res.Data = raw
	}

	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encoding job result: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("writing job result: %w", err)
	}
	return nil
}
