package dao

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-publish/internal/domain/task/entity"
	"github.com/vadim/neo-publish/internal/platform"
)

// LogPostgres implements LogRepository for PostgreSQL
type LogPostgres struct {
	pool *pgxpool.Pool
}

// NewLogPostgres creates a new PostgreSQL publish log repository
func NewLogPostgres(pool *pgxpool.Pool) *LogPostgres {
	return &LogPostgres{pool: pool}
}

// ListByTask retrieves the publish logs of a task together with account usernames
func (r *LogPostgres) ListByTask(ctx context.Context, taskID string) ([]entity.PublishLog, error) {
	query := `
		SELECT l.id, l.task_id, l.account_id, l.platform, COALESCE(a.platform_username, ''),
		       l.status, COALESCE(l.publish_url, ''), COALESCE(l.error_message, ''),
		       l.published_at, l.created_at
		FROM publish_logs l
		LEFT JOIN social_accounts a ON a.id = l.account_id
		WHERE l.task_id = $1
		ORDER BY l.created_at
	`

	rows, err := r.pool.Query(ctx, query, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying publish logs: %w", err)
	}
	defer rows.Close()

	logs := []entity.PublishLog{}
	for rows.Next() {
		var l entity.PublishLog
		var p, status string
		err := rows.Scan(
			&l.ID,
			&l.TaskID,
			&l.AccountID,
			&p,
			&l.PlatformUsername,
			&status,
			&l.PublishURL,
			&l.ErrorMessage,
			&l.PublishedAt,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning publish log: %w", err)
		}
		l.Platform = platform.Platform(p)
		l.Status = entity.LogStatus(status)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating publish logs: %w", err)
	}

	return logs, nil
}
