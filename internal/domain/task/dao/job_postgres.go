package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-publish/internal/domain/task/entity"
	"github.com/vadim/neo-publish/internal/platform"
)

// JobPostgres implements JobRepository for PostgreSQL
type JobPostgres struct {
	pool *pgxpool.Pool
}

// NewJobPostgres creates a new PostgreSQL job repository
func NewJobPostgres(pool *pgxpool.Pool) *JobPostgres {
	return &JobPostgres{pool: pool}
}

// ListByTask retrieves the jobs of a task in creation order
func (r *JobPostgres) ListByTask(ctx context.Context, taskID string) ([]entity.Job, error) {
	query := `
		SELECT job_id, task_id, platform, account_id, scheduled_at, created_at
		FROM task_jobs
		WHERE task_id = $1
		ORDER BY created_at, job_id
	`

	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []entity.Job
	for rows.Next() {
		var j entity.Job
		var p string
		if err := rows.Scan(&j.JobID, &j.TaskID, &p, &j.AccountID, &j.ScheduledAt, &j.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		j.Platform = platform.Platform(p)
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}

	return jobs, nil
}

// PlatformStats aggregates job outcomes per task and platform
func (r *JobPostgres) PlatformStats(ctx context.Context, taskIDs []string) (map[string]map[platform.Platform]entity.PlatformStat, error) {
	stats := make(map[string]map[platform.Platform]entity.PlatformStat, len(taskIDs))
	if len(taskIDs) == 0 {
		return stats, nil
	}

	query := `
		SELECT j.task_id, j.platform,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE l.status = 'SUCCESS') AS published,
		       COUNT(*) FILTER (WHERE l.status = 'FAILED') AS failed
		FROM task_jobs j
		LEFT JOIN publish_logs l ON l.task_id = j.task_id AND l.account_id = j.account_id
		WHERE j.task_id = ANY($1)
		GROUP BY j.task_id, j.platform
	`

	rows, err := r.pool.Query(ctx, query, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("querying platform stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, p string
		var s entity.PlatformStat
		if err := rows.Scan(&taskID, &p, &s.Total, &s.Published, &s.Failed); err != nil {
			return nil, fmt.Errorf("scanning platform stat: %w", err)
		}
		if stats[taskID] == nil {
			stats[taskID] = make(map[platform.Platform]entity.PlatformStat)
		}
		stats[taskID][platform.Platform(p)] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating platform stats: %w", err)
	}

	return stats, nil
}
