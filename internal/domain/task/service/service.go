package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/neo-publish/internal/domain/task/dao"
	"github.com/vadim/neo-publish/internal/domain/task/entity"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
)

// Pagination defaults for task listings
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Service handles business logic for publish tasks
type Service struct {
	tasks dao.TaskRepository
	jobs  dao.JobRepository
	logs  dao.LogRepository
	now   func() time.Time
}

// New creates a new task service
func New(tasks dao.TaskRepository, jobs dao.JobRepository, logs dao.LogRepository) *Service {
	return &Service{
		tasks: tasks,
		jobs:  jobs,
		logs:  logs,
		now:   time.Now,
	}
}

// AccountRef is a selected account as the task sees it
type AccountRef struct {
	ID       string
	Platform platform.Platform
}

// CreateInput represents input for creating a task
type CreateInput struct {
	UserID          string
	MvpID           string
	ContentType     entity.ContentType
	Title           string
	Description     string
	Tags            []string
	MediaURLs       []string
	TargetPlatforms []platform.Platform
	PublishType     entity.PublishType
	ScheduledAt     *time.Time
	IdempotencyKey  string
	Accounts        []AccountRef
}

// CreateTask persists a PENDING task with one job per account whose
// platform is targeted
func (s *Service) CreateTask(ctx context.Context, in CreateInput) (*entity.Task, []entity.Job, error) {
	now := s.now()

	t := &entity.Task{
		ID:              uuid.New().String(),
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
		Status:          entity.StatusPending,
		IdempotencyKey:  in.IdempotencyKey,
		CreditsCost:     len(in.Accounts) * entity.CreditsPerAccount,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := t.Validate(now); err != nil {
		return nil, nil, err
	}

	jobs := BuildJobs(t, in.Accounts, now)
	t.TotalJobs = len(jobs)

	if err := s.tasks.CreateWithJobs(ctx, t, jobs); err != nil {
		return nil, nil, err
	}

	return t, jobs, nil
}

// BuildJobs pairs every targeted platform with the accounts on it
func BuildJobs(t *entity.Task, accounts []AccountRef, now time.Time) []entity.Job {
	targeted := make(map[platform.Platform]bool, len(t.TargetPlatforms))
	for _, p := range t.TargetPlatforms {
		targeted[p] = true
	}

	var jobs []entity.Job
	seen := make(map[string]bool, len(accounts))
	for _, acc := range accounts {
		if !targeted[acc.Platform] || seen[acc.ID] {
			continue
		}
		seen[acc.ID] = true

		jobs = append(jobs, entity.Job{
			JobID:       queue.PublishJobID(t.IdempotencyKey, acc.Platform, acc.ID),
			TaskID:      t.ID,
			Platform:    acc.Platform,
			AccountID:   acc.ID,
			ScheduledAt: t.ScheduledAt,
			CreatedAt:   now,
		})
	}
	return jobs
}

// FindByIdempotencyKey returns nil when the user never used key
func (s *Service) FindByIdempotencyKey(ctx context.Context, userID, key string) (*entity.Task, error) {
	return s.tasks.GetByIdempotencyKey(ctx, userID, key)
}

// GetTask retrieves a task owned by userID
func (s *Service) GetTask(ctx context.Context, userID, id string) (*entity.Task, error) {
	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil || t.UserID != userID {
		return nil, entity.ErrTaskNotFound
	}
	return t, nil
}

// GetTaskByID retrieves a task regardless of its owner
func (s *Service) GetTaskByID(ctx context.Context, id string) (*entity.Task, error) {
	t, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, entity.ErrTaskNotFound
	}
	return t, nil
}

// Jobs returns the jobs of a task
func (s *Service) Jobs(ctx context.Context, taskID string) ([]entity.Job, error) {
	return s.jobs.ListByTask(ctx, taskID)
}

// Logs returns the publish logs of a task
func (s *Service) Logs(ctx context.Context, taskID string) ([]entity.PublishLog, error) {
	return s.logs.ListByTask(ctx, taskID)
}

// ListInput represents input for listing tasks
type ListInput struct {
	UserID string
	Status *entity.Status
	MvpID  string
	Page   int
	Limit  int
}

// ListOutput represents a page of tasks
type ListOutput struct {
	Tasks      []entity.Task
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}

// ListTasks retrieves a page of the user's tasks with per-platform stats
func (s *Service) ListTasks(ctx context.Context, in ListInput) (*ListOutput, error) {
	if in.Status != nil && !in.Status.Valid() {
		return nil, entity.ErrInvalidStatus
	}

	page, limit := Normalize(in.Page, in.Limit)

	filter := dao.TaskFilter{
		UserID: in.UserID,
		Status: in.Status,
		MvpID:  in.MvpID,
	}

	tasks, err := s.tasks.List(ctx, filter, dao.ListOptions{
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}

	total, err := s.tasks.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	if len(tasks) > 0 {
		ids := make([]string, len(tasks))
		for i := range tasks {
			ids[i] = tasks[i].ID
		}

		stats, err := s.jobs.PlatformStats(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range tasks {
			tasks[i].PlatformStats = stats[tasks[i].ID]
		}
	}

	if tasks == nil {
		tasks = []entity.Task{}
	}

	return &ListOutput{
		Tasks:      tasks,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

// Normalize applies the pagination defaults and bounds
func Normalize(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// Cancel moves a running task to CANCELLED. A nil task means it had
// already reached a terminal state.
func (s *Service) Cancel(ctx context.Context, id string) (*entity.Task, error) {
	return s.tasks.Cancel(ctx, id)
}

// MarkProcessing moves a PENDING task to PROCESSING
func (s *Service) MarkProcessing(ctx context.Context, id string) (bool, error) {
	return s.tasks.MarkProcessing(ctx, id)
}

// MarkFailed fails a task that could not be submitted
func (s *Service) MarkFailed(ctx context.Context, id, reason string) error {
	return s.tasks.MarkFailed(ctx, id, reason)
}

// RecordResult stores the outcome of one job
func (s *Service) RecordResult(ctx context.Context, log *entity.PublishLog) (*entity.Task, bool, error) {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	return s.tasks.RecordResult(ctx, log)
}
