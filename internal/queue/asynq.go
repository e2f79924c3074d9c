package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/hibiken/asynq"
)

const listPageSize = 200

// AsynqBroker implements Broker on top of asynq (Redis)
type AsynqBroker struct {
	redis     asynq.RedisConnOpt
	client    *asynq.Client
	inspector *asynq.Inspector
	logger    *slog.Logger

	mu        sync.Mutex
	scheduler *asynq.Scheduler
}

// NewAsynqBroker connects a client and an inspector to Redis
func NewAsynqBroker(redis asynq.RedisConnOpt, logger *slog.Logger) *AsynqBroker {
	return &AsynqBroker{
		redis:     redis,
		client:    asynq.NewClient(redis),
		inspector: asynq.NewInspector(redis),
		logger:    logger,
	}
}

// Enqueue stores the job; an id conflict is reported as a duplicate
func (b *AsynqBroker) Enqueue(ctx context.Context, req EnqueueRequest) (*JobInfo, error) {
	opts := taskOptions(req)
	opts = append(opts, asynq.TaskID(req.ID))
	if !req.ProcessAt.IsZero() {
		opts = append(opts, asynq.ProcessAt(req.ProcessAt))
	}

	info, err := b.client.EnqueueContext(ctx, asynq.NewTask(req.Type, req.Payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		existing, lerr := b.Lookup(ctx, req.Queue, req.ID)
		if lerr != nil {
			return nil, lerr
		}
		if existing == nil {
			// removed between the conflict and the lookup
			existing = &JobInfo{ID: req.ID, Queue: req.Queue, Type: req.Type, State: JobWaiting}
		}
		existing.Duplicate = true
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	return toJobInfo(info), nil
}

// Lookup returns nil, nil for unknown jobs or queues
func (b *AsynqBroker) Lookup(_ context.Context, queue, id string) (*JobInfo, error) {
	info, err := b.inspector.GetTaskInfo(queue, id)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toJobInfo(info), nil
}

// Cancel deletes pending/scheduled/retry jobs and signals active ones
func (b *AsynqBroker) Cancel(ctx context.Context, queue, id string) (bool, error) {
	info, err := b.Lookup(ctx, queue, id)
	if err != nil || info == nil {
		return false, err
	}

	switch info.State {
	case JobActive:
		if err := b.inspector.CancelProcessing(id); err != nil {
			return false, err
		}
		return true, nil
	case JobWaiting, JobDelayed:
		err := b.inspector.DeleteTask(queue, id)
		if isNotFound(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}

// Remove deletes a non-active job
func (b *AsynqBroker) Remove(_ context.Context, queue, id string) error {
	err := b.inspector.DeleteTask(queue, id)
	if isNotFound(err) {
		return nil
	}
	return err
}

// ListFinished pages through completed or archived tasks
func (b *AsynqBroker) ListFinished(_ context.Context, queue string, state JobState, limit int) ([]JobInfo, error) {
	exists, err := b.hasQueue(queue)
	if err != nil || !exists {
		return nil, err
	}

	list := b.inspector.ListCompletedTasks
	switch state {
	case JobCompleted:
	case JobFailed:
		list = b.inspector.ListArchivedTasks
	default:
		return nil, fmt.Errorf("listing %s jobs is not supported", state)
	}

	var out []JobInfo
	for page := 1; len(out) < limit; page++ {
		tasks, err := list(queue, asynq.PageSize(listPageSize), asynq.Page(page))
		if isNotFound(err) {
			break
		}
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			out = append(out, *toJobInfo(t))
		}
		if len(tasks) < listPageSize {
			break
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Counts maps asynq queue stats onto job states
func (b *AsynqBroker) Counts(_ context.Context, queue string) (Counts, error) {
	exists, err := b.hasQueue(queue)
	if err != nil || !exists {
		return Counts{}, err
	}

	qi, err := b.inspector.GetQueueInfo(queue)
	if err != nil {
		return Counts{}, err
	}

	return Counts{
		Waiting:   qi.Pending,
		Active:    qi.Active,
		Delayed:   qi.Scheduled + qi.Retry,
		Completed: qi.Completed,
		Failed:    qi.Archived,
	}, nil
}

// Schedule registers a cron entry; the scheduler starts with the first entry
func (b *AsynqBroker) Schedule(_ context.Context, req EnqueueRequest, cron string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	started := b.scheduler != nil
	if !started {
		b.scheduler = asynq.NewScheduler(b.redis, &asynq.SchedulerOpts{
			Logger: NewSlogAdapter(b.logger),
		})
	}

	entryID, err := b.scheduler.Register(cron, asynq.NewTask(req.Type, req.Payload), taskOptions(req)...)
	if err != nil {
		if !started {
			b.scheduler = nil
		}
		return "", err
	}

	if !started {
		if err := b.scheduler.Start(); err != nil {
			b.scheduler = nil
			return "", fmt.Errorf("starting scheduler: %w", err)
		}
	}

	return entryID, nil
}

// Purge deletes the queue together with its jobs
func (b *AsynqBroker) Purge(_ context.Context, queue string) error {
	exists, err := b.hasQueue(queue)
	if err != nil || !exists {
		return err
	}
	err = b.inspector.DeleteQueue(queue, true)
	if isNotFound(err) {
		return nil
	}
	return err
}

// Close stops the scheduler and closes Redis connections
func (b *AsynqBroker) Close() error {
	b.mu.Lock()
	if b.scheduler != nil {
		b.scheduler.Shutdown()
		b.scheduler = nil
	}
	b.mu.Unlock()

	return errors.Join(b.client.Close(), b.inspector.Close())
}

func (b *AsynqBroker) hasQueue(queue string) (bool, error) {
	queues, err := b.inspector.Queues()
	if err != nil {
		return false, err
	}
	return slices.Contains(queues, queue), nil
}

func taskOptions(req EnqueueRequest) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(req.Queue),
		asynq.MaxRetry(req.Policy.MaxRetry()),
	}
	if req.Policy.Timeout > 0 {
		opts = append(opts, asynq.Timeout(req.Policy.Timeout))
	}
	if req.Policy.Retention.CompletedAge > 0 {
		opts = append(opts, asynq.Retention(req.Policy.Retention.CompletedAge))
	}
	return opts
}

func toJobInfo(t *asynq.TaskInfo) *JobInfo {
	return &JobInfo{
		ID:            t.ID,
		Queue:         t.Queue,
		Type:          t.Type,
		State:         toJobState(t.State),
		Retried:       t.Retried,
		MaxRetry:      t.MaxRetry,
		LastErr:       t.LastErr,
		NextProcessAt: t.NextProcessAt,
		CompletedAt:   t.CompletedAt,
		LastFailedAt:  t.LastFailedAt,
		Result:        t.Result,
	}
}

func toJobState(s asynq.TaskState) JobState {
	switch s {
	case asynq.TaskStateActive:
		return JobActive
	case asynq.TaskStateScheduled, asynq.TaskStateRetry:
		return JobDelayed
	case asynq.TaskStateCompleted:
		return JobCompleted
	case asynq.TaskStateArchived:
		return JobFailed
	default:
		return JobWaiting
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound)
}

// SlogAdapter forwards asynq's internal logging to slog
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger for asynq
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger.With("component", "asynq")}
}

func (a *SlogAdapter) Debug(args ...interface{}) { a.logger.Debug(fmt.Sprint(args...)) }
func (a *SlogAdapter) Info(args ...interface{})  { a.logger.Info(fmt.Sprint(args...)) }
func (a *SlogAdapter) Warn(args ...interface{})  { a.logger.Warn(fmt.Sprint(args...)) }
func (a *SlogAdapter) Error(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }

func (a *SlogAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
