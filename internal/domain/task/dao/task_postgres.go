package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-publish/internal/domain/task/entity"
	"github.com/vadim/neo-publish/internal/platform"
)

// TaskPostgres implements TaskRepository for PostgreSQL
type TaskPostgres struct {
	pool *pgxpool.Pool
}

// NewTaskPostgres creates a new PostgreSQL task repository
func NewTaskPostgres(pool *pgxpool.Pool) *TaskPostgres {
	return &TaskPostgres{pool: pool}
}

const uniqueViolation = "23505"

const taskColumns = `
	id, user_id, mvp_id, content_type, title, description, tags, media_urls,
	target_platforms, publish_type, scheduled_at, status, progress, total_jobs,
	published_count, failed_count, credits_cost, idempotency_key,
	last_error_message, last_error_at, created_at, updated_at, completed_at`

// CreateWithJobs inserts a task together with its jobs
func (r *TaskPostgres) CreateWithJobs(ctx context.Context, t *entity.Task, jobs []entity.Job) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO publish_tasks (id, user_id, mvp_id, content_type, title, description, tags, media_urls,
		                           target_platforms, publish_type, scheduled_at, status, progress, total_jobs,
		                           credits_cost, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	var mvpID *string
	if t.MvpID != "" {
		mvpID = &t.MvpID
	}

	_, err = tx.Exec(ctx, query,
		t.ID,
		t.UserID,
		mvpID,
		string(t.ContentType),
		t.Title,
		t.Description,
		nonNil(t.Tags),
		nonNil(t.MediaURLs),
		platformStrings(t.TargetPlatforms),
		string(t.PublishType),
		t.ScheduledAt,
		string(t.Status),
		t.Progress,
		t.TotalJobs,
		t.CreditsCost,
		t.IdempotencyKey,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return entity.ErrDuplicateTask
		}
		return fmt.Errorf("inserting task: %w", err)
	}

	batch := &pgx.Batch{}
	for _, j := range jobs {
		batch.Queue(`
			INSERT INTO task_jobs (job_id, task_id, platform, account_id, scheduled_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (job_id) DO NOTHING`,
			j.JobID, j.TaskID, string(j.Platform), j.AccountID, j.ScheduledAt, j.CreatedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("inserting jobs: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing task: %w", err)
	}

	return nil
}

// GetByID retrieves a task by ID
func (r *TaskPostgres) GetByID(ctx context.Context, id string) (*entity.Task, error) {
	query := `SELECT` + taskColumns + ` FROM publish_tasks WHERE id = $1`

	t, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	return t, nil
}

// GetByIdempotencyKey retrieves the task a user submitted with key
func (r *TaskPostgres) GetByIdempotencyKey(ctx context.Context, userID, key string) (*entity.Task, error) {
	query := `SELECT` + taskColumns + ` FROM publish_tasks WHERE user_id = $1 AND idempotency_key = $2`

	t, err := scanTask(r.pool.QueryRow(ctx, query, userID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	return t, nil
}

// List retrieves tasks with filtering, newest first
func (r *TaskPostgres) List(ctx context.Context, filter TaskFilter, opts ListOptions) ([]entity.Task, error) {
	where, args := filterClause(filter)
	query := `SELECT` + taskColumns + ` FROM publish_tasks` + where + ` ORDER BY created_at DESC`
	argNum := len(args) + 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, opts.Limit)
		argNum++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, opts.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []entity.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}

	return tasks, nil
}

// Count returns the number of tasks matching the filter
func (r *TaskPostgres) Count(ctx context.Context, filter TaskFilter) (int64, error) {
	where, args := filterClause(filter)

	var count int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM publish_tasks"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting tasks: %w", err)
	}

	return count, nil
}

// MarkProcessing moves a pending task to PROCESSING
func (r *TaskPostgres) MarkProcessing(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE publish_tasks
		SET status = 'PROCESSING', updated_at = $2
		WHERE id = $1 AND status = 'PENDING'
	`

	tag, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return false, fmt.Errorf("marking task processing: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// MarkFailed fails a task that has not reached a terminal state
func (r *TaskPostgres) MarkFailed(ctx context.Context, id, reason string) error {
	query := `
		UPDATE publish_tasks
		SET status = 'FAILED', last_error_message = $2, last_error_at = $3,
		    completed_at = $3, updated_at = $3
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
	`

	_, err := r.pool.Exec(ctx, query, id, reason, time.Now())
	if err != nil {
		return fmt.Errorf("marking task failed: %w", err)
	}

	return nil
}

// Cancel moves a running task to CANCELLED
func (r *TaskPostgres) Cancel(ctx context.Context, id string) (*entity.Task, error) {
	query := `
		UPDATE publish_tasks
		SET status = 'CANCELLED', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status IN ('PENDING', 'PROCESSING')
		RETURNING` + taskColumns

	t, err := scanTask(r.pool.QueryRow(ctx, query, id, time.Now()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cancelling task: %w", err)
	}

	return t, nil
}

// RecordResult stores a publish log and advances the task in one transaction.
// The task row is locked first so concurrent workers apply their results in turn.
func (r *TaskPostgres) RecordResult(ctx context.Context, log *entity.PublishLog) (*entity.Task, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, "SELECT status FROM publish_tasks WHERE id = $1 FOR UPDATE", log.TaskID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, entity.ErrTaskNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("locking task: %w", err)
	}

	if entity.Status(status).Terminal() {
		t, err := r.loadInTx(ctx, tx, log.TaskID)
		if err != nil {
			return nil, false, err
		}
		return t, false, tx.Commit(ctx)
	}

	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO publish_logs (id, task_id, account_id, platform, status, publish_url, error_message, published_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (task_id, account_id) DO NOTHING`,
		log.ID,
		log.TaskID,
		log.AccountID,
		string(log.Platform),
		string(log.Status),
		nullable(log.PublishURL),
		nullable(log.ErrorMessage),
		log.PublishedAt,
		log.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("inserting publish log: %w", err)
	}

	if tag.RowsAffected() == 0 {
		t, err := r.loadInTx(ctx, tx, log.TaskID)
		if err != nil {
			return nil, false, err
		}
		return t, false, tx.Commit(ctx)
	}

	published, failed := 0, 0
	if log.Status == entity.LogStatusSuccess {
		published = 1
	} else {
		failed = 1
	}

	query := `
		WITH next AS (
			SELECT id AS task_id,
			       total_jobs AS total,
			       published_count + $2::int AS published,
			       failed_count + $3::int AS failed
			FROM publish_tasks
			WHERE id = $1
		)
		UPDATE publish_tasks
		SET published_count = next.published,
		    failed_count = next.failed,
		    progress = GREATEST(progress,
		        CASE WHEN next.total > 0
		             THEN LEAST(100, ROUND((next.published + next.failed) * 100.0 / next.total)::int)
		             ELSE 0 END),
		    status = CASE
		        WHEN next.published + next.failed >= next.total
		            THEN CASE WHEN next.published > 0 THEN 'COMPLETED' ELSE 'FAILED' END
		        ELSE 'PROCESSING' END,
		    completed_at = CASE WHEN next.published + next.failed >= next.total THEN $5 ELSE completed_at END,
		    last_error_message = COALESCE($4, last_error_message),
		    last_error_at = CASE WHEN $4::text IS NOT NULL THEN $5 ELSE last_error_at END,
		    updated_at = $5
		FROM next
		WHERE id = next.task_id
		RETURNING` + taskColumns

	t, err := scanTask(tx.QueryRow(ctx, query, log.TaskID, published, failed, nullable(log.ErrorMessage), time.Now()))
	if err != nil {
		return nil, false, fmt.Errorf("updating task counters: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing result: %w", err)
	}

	return t, true, nil
}

func (r *TaskPostgres) loadInTx(ctx context.Context, tx pgx.Tx, id string) (*entity.Task, error) {
	t, err := scanTask(tx.QueryRow(ctx, `SELECT`+taskColumns+` FROM publish_tasks WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	return t, nil
}

func filterClause(filter TaskFilter) (string, []interface{}) {
	where := " WHERE user_id = $1"
	args := []interface{}{filter.UserID}
	argNum := 2

	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(*filter.Status))
		argNum++
	}

	if filter.MvpID != "" {
		where += fmt.Sprintf(" AND mvp_id = $%d", argNum)
		args = append(args, filter.MvpID)
	}

	return where, args
}

func scanTask(row pgx.Row) (*entity.Task, error) {
	var t entity.Task
	var mvpID, lastErr *string
	var lastErrAt *time.Time
	var contentType, publishType, status string
	var platforms []string

	err := row.Scan(
		&t.ID,
		&t.UserID,
		&mvpID,
		&contentType,
		&t.Title,
		&t.Description,
		&t.Tags,
		&t.MediaURLs,
		&platforms,
		&publishType,
		&t.ScheduledAt,
		&status,
		&t.Progress,
		&t.TotalJobs,
		&t.PublishedCount,
		&t.FailedCount,
		&t.CreditsCost,
		&t.IdempotencyKey,
		&lastErr,
		&lastErrAt,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if mvpID != nil {
		t.MvpID = *mvpID
	}
	if lastErr != nil {
		le := &entity.LastError{Message: *lastErr}
		if lastErrAt != nil {
			le.Timestamp = *lastErrAt
		}
		t.LastError = le
	}
	t.ContentType = entity.ContentType(contentType)
	t.PublishType = entity.PublishType(publishType)
	t.Status = entity.Status(status)
	for _, p := range platforms {
		t.TargetPlatforms = append(t.TargetPlatforms, platform.Platform(p))
	}

	return &t, nil
}

func platformStrings(ps []platform.Platform) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
