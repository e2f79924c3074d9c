package policy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	accountentity "github.com/vadim/neo-publish/internal/domain/account/entity"
	"github.com/vadim/neo-publish/internal/domain/task/entity"
	"github.com/vadim/neo-publish/internal/domain/task/service"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
)

// AccountProvider resolves the accounts a task publishes through.
// Defined here (consumer) rather than in the account domain (provider).
type AccountProvider interface {
	GetActiveByIDs(ctx context.Context, userID string, ids []string) ([]accountentity.Account, error)
}

// JobQueue is the part of the queue client the producer needs
type JobQueue interface {
	AddPublishJob(ctx context.Context, data queue.PublishJobData) (*queue.JobHandle, error)
	GetJobStatus(ctx context.Context, n queue.Name, jobID string) (*queue.JobStatus, error)
	CancelJob(ctx context.Context, n queue.Name, jobID string) (bool, error)
}

// TaskRecorder observes task lifecycle events
type TaskRecorder interface {
	TaskCreated(jobs int)
	JobResolved(p platform.Platform, success bool)
	TaskFinished(status entity.Status)
}

// Policy orchestrates publish task use-cases
type Policy struct {
	svc      *service.Service
	accounts AccountProvider
	queue    JobQueue
	recorder TaskRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Policy
type Option func(*Policy)

// WithRecorder reports task events to rec
func WithRecorder(rec TaskRecorder) Option {
	return func(p *Policy) {
		p.recorder = rec
	}
}

// New creates a new task policy
func New(svc *service.Service, accounts AccountProvider, q JobQueue, logger *slog.Logger, opts ...Option) *Policy {
	p := &Policy{
		svc:      svc,
		accounts: accounts,
		queue:    q,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateTaskInput represents input for submitting a task
type CreateTaskInput struct {
	UserID             string
	MvpID              string
	ContentType        entity.ContentType
	Title              string
	Description        string
	Tags               []string
	MediaURLs          []string
	TargetPlatforms    []platform.Platform
	SelectedAccountIDs []string
	PublishType        entity.PublishType
	ScheduledAt        *time.Time
	IdempotencyKey     string
}

// CreateTaskOutput represents output from submitting a task
type CreateTaskOutput struct {
	Task *entity.Task
	Jobs []*queue.JobHandle
	// Existing is set when the idempotency key matched an earlier task
	Existing bool
}

// CreateTask validates the submission, persists the task with its jobs and
// enqueues one publish job per (platform, account) pair.
func (p *Policy) CreateTask(ctx context.Context, in CreateTaskInput) (*CreateTaskOutput, error) {
	draft := entity.Task{
		ContentType:     in.ContentType,
		Title:           in.Title,
		TargetPlatforms: in.TargetPlatforms,
		PublishType:     in.PublishType,
		ScheduledAt:     in.ScheduledAt,
	}
	if err := draft.Validate(p.now()); err != nil {
		return nil, err
	}

	selected := unique(in.SelectedAccountIDs)
	if len(selected) == 0 {
		return nil, entity.ErrNoAccounts
	}

	accounts, err := p.accounts.GetActiveByIDs(ctx, in.UserID, selected)
	if err != nil {
		return nil, fmt.Errorf("loading accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, entity.ErrNoActiveAccounts
	}
	if len(accounts) != len(selected) {
		return nil, entity.ErrInactiveAccounts
	}
	if missing := uncovered(in.TargetPlatforms, accounts); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", entity.ErrPlatformUncovered, strings.Join(missing, ", "))
	}

	key := in.IdempotencyKey
	if key == "" {
		key, err = NewIdempotencyKey()
		if err != nil {
			return nil, err
		}
	} else if out, err := p.resubmit(ctx, in.UserID, key); out != nil || err != nil {
		return out, err
	}

	refs := make([]service.AccountRef, len(accounts))
	for i, a := range accounts {
		refs[i] = service.AccountRef{ID: a.ID, Platform: a.Platform}
	}

	task, jobs, err := p.svc.CreateTask(ctx, service.CreateInput{
		UserID:          in.UserID,
		MvpID:           in.MvpID,
		ContentType:     in.ContentType,
		Title:           in.Title,
		Description:     in.Description,
		Tags:            in.Tags,
		MediaURLs:       in.MediaURLs,
		TargetPlatforms: in.TargetPlatforms,
		PublishType:     in.PublishType,
		ScheduledAt:     in.ScheduledAt,
		IdempotencyKey:  key,
		Accounts:        refs,
	})
	if errors.Is(err, entity.ErrDuplicateTask) {
		// a concurrent request with the same key won the insert
		return p.resubmit(ctx, in.UserID, key)
	}
	if err != nil {
		return nil, err
	}

	handles, err := p.enqueue(ctx, task, jobs)
	if err != nil {
		p.logger.Error("failed to enqueue publish jobs", "task_id", task.ID, "error", err)
		if markErr := p.svc.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
			p.logger.Error("failed to mark task failed", "task_id", task.ID, "error", markErr)
		}
		return nil, fmt.Errorf("%w: %w", entity.ErrSubmissionFailed, err)
	}

	if p.recorder != nil {
		p.recorder.TaskCreated(len(jobs))
	}

	p.logger.Info("publish task created",
		"task_id", task.ID,
		"user_id", task.UserID,
		"jobs", len(jobs),
		"publish_type", task.PublishType,
	)

	return &CreateTaskOutput{Task: task, Jobs: handles}, nil
}

// resubmit returns the task already created with key. Jobs of a task that is
// still running are enqueued again; the deterministic job ids make that a no-op
// for jobs the broker already holds.
func (p *Policy) resubmit(ctx context.Context, userID, key string) (*CreateTaskOutput, error) {
	task, err := p.svc.FindByIdempotencyKey(ctx, userID, key)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}

	out := &CreateTaskOutput{Task: task, Existing: true}
	if task.Status.Terminal() {
		return out, nil
	}

	jobs, err := p.svc.Jobs(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	handles, err := p.enqueue(ctx, task, jobs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrSubmissionFailed, err)
	}
	out.Jobs = handles

	p.logger.Info("publish task resubmitted", "task_id", task.ID, "jobs", len(jobs))
	return out, nil
}

func (p *Policy) enqueue(ctx context.Context, task *entity.Task, jobs []entity.Job) ([]*queue.JobHandle, error) {
	content := task.Content()
	handles := make([]*queue.JobHandle, 0, len(jobs))

	for _, j := range jobs {
		h, err := p.queue.AddPublishJob(ctx, queue.PublishJobData{
			TaskID:         task.ID,
			UserID:         task.UserID,
			Platform:       j.Platform,
			AccountID:      j.AccountID,
			Content:        content,
			PublishType:    string(task.PublishType),
			ScheduledAt:    task.ScheduledAt,
			IdempotencyKey: task.IdempotencyKey,
		})
		if err != nil {
			return handles, fmt.Errorf("enqueuing job for account %s: %w", j.AccountID, err)
		}
		handles = append(handles, h)
	}

	return handles, nil
}

// ListTasks returns a page of the user's tasks
func (p *Policy) ListTasks(ctx context.Context, in service.ListInput) (*service.ListOutput, error) {
	return p.svc.ListTasks(ctx, in)
}

// JobQueueStatus is the live broker state of one job of a task
type JobQueueStatus struct {
	JobID     string            `json:"jobId"`
	Platform  platform.Platform `json:"platform"`
	AccountID string            `json:"accountId"`
	Status    *queue.JobStatus  `json:"status"`
}

// TaskDetails is a task with its publish logs and, while it runs, its jobs
type TaskDetails struct {
	Task        *entity.Task
	Logs        []entity.PublishLog
	QueueStatus []JobQueueStatus
}

// GetTask returns a task of the user with its logs. A running task also
// carries the live status of each of its jobs.
func (p *Policy) GetTask(ctx context.Context, userID, id string) (*TaskDetails, error) {
	task, err := p.svc.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	logs, err := p.svc.Logs(ctx, id)
	if err != nil {
		return nil, err
	}

	details := &TaskDetails{Task: task, Logs: logs}
	if task.Status.Terminal() {
		return details, nil
	}

	jobs, err := p.svc.Jobs(ctx, id)
	if err != nil {
		return nil, err
	}

	details.QueueStatus = make([]JobQueueStatus, 0, len(jobs))
	for _, j := range jobs {
		status, err := p.queue.GetJobStatus(ctx, queue.Publish, j.JobID)
		if err != nil {
			p.logger.Warn("failed to read job status", "job_id", j.JobID, "error", err)
		}
		details.QueueStatus = append(details.QueueStatus, JobQueueStatus{
			JobID:     j.JobID,
			Platform:  j.Platform,
			AccountID: j.AccountID,
			Status:    status,
		})
	}

	return details, nil
}

// CancelTask stops a running task. Its jobs are cancelled best-effort.
func (p *Policy) CancelTask(ctx context.Context, userID, id string) (*entity.Task, error) {
	task, err := p.svc.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := cancellable(task.Status); err != nil {
		return nil, err
	}

	jobs, err := p.svc.Jobs(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if _, err := p.queue.CancelJob(ctx, queue.Publish, j.JobID); err != nil {
			p.logger.Warn("failed to cancel job", "task_id", id, "job_id", j.JobID, "error", err)
		}
	}

	cancelled, err := p.svc.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if cancelled == nil {
		// the task finished while its jobs were being cancelled
		current, err := p.svc.GetTask(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if err := cancellable(current.Status); err != nil {
			return nil, err
		}
		return nil, entity.ErrTaskFinished
	}

	if p.recorder != nil {
		p.recorder.TaskFinished(cancelled.Status)
	}

	p.logger.Info("publish task cancelled", "task_id", id, "jobs", len(jobs))
	return cancelled, nil
}

func cancellable(s entity.Status) error {
	switch s {
	case entity.StatusCompleted:
		return entity.ErrTaskCompleted
	case entity.StatusCancelled:
		return entity.ErrTaskCancelled
	case entity.StatusFailed:
		return entity.ErrTaskFinished
	case entity.StatusPending, entity.StatusProcessing:
		return nil
	}
	return entity.ErrInvalidStatus
}

// StartJob is called by a worker before it publishes. It returns
// ErrTaskCancelled or ErrTaskFinished when the job must be skipped.
func (p *Policy) StartJob(ctx context.Context, taskID string) (*entity.Task, error) {
	task, err := p.svc.GetTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	switch task.Status {
	case entity.StatusCancelled:
		return nil, entity.ErrTaskCancelled
	case entity.StatusCompleted, entity.StatusFailed:
		return nil, entity.ErrTaskFinished
	case entity.StatusPending:
		if _, err := p.svc.MarkProcessing(ctx, taskID); err != nil {
			return nil, err
		}
		task.Status = entity.StatusProcessing
	case entity.StatusProcessing:
	}

	return task, nil
}

// PublishResult is the outcome of one publish job
type PublishResult struct {
	TaskID       string
	AccountID    string
	Platform     platform.Platform
	Success      bool
	PublishURL   string
	ErrorMessage string
	PublishedAt  *time.Time
}

// RecordPublishResult stores the outcome of a job and advances the task.
// A result for a job that was already recorded, or for a task that is no
// longer running, leaves the task untouched.
func (p *Policy) RecordPublishResult(ctx context.Context, r PublishResult) (*entity.Task, error) {
	status := entity.LogStatusFailed
	if r.Success {
		status = entity.LogStatusSuccess
	}

	task, applied, err := p.svc.RecordResult(ctx, &entity.PublishLog{
		TaskID:       r.TaskID,
		AccountID:    r.AccountID,
		Platform:     r.Platform,
		Status:       status,
		PublishURL:   r.PublishURL,
		ErrorMessage: r.ErrorMessage,
		PublishedAt:  r.PublishedAt,
		CreatedAt:    p.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("recording result of task %s: %w", r.TaskID, err)
	}

	if !applied {
		p.logger.Info("publish result ignored",
			"task_id", r.TaskID,
			"account_id", r.AccountID,
			"task_status", task.Status,
		)
		return task, nil
	}

	if p.recorder != nil {
		p.recorder.JobResolved(r.Platform, r.Success)
		if task.Status.Terminal() {
			p.recorder.TaskFinished(task.Status)
		}
	}

	p.logger.Info("publish result recorded",
		"task_id", r.TaskID,
		"account_id", r.AccountID,
		"platform", r.Platform,
		"success", r.Success,
		"progress", task.Progress,
		"task_status", task.Status,
	)

	return task, nil
}

// NewIdempotencyKey returns 16 random bytes, hex-encoded
func NewIdempotencyKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating idempotency key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// uncovered lists target platforms none of the accounts publishes to
func uncovered(targets []platform.Platform, accounts []accountentity.Account) []string {
	have := make(map[platform.Platform]bool, len(accounts))
	for _, a := range accounts {
		have[a.Platform] = true
	}

	var missing []string
	for _, t := range targets {
		if !have[t] {
			missing = append(missing, string(t))
		}
	}
	return missing
}
