package dao

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-publish/internal/domain/analytics/entity"
	"github.com/vadim/neo-publish/internal/platform"
)

// TrendFilter contains filters for listing trends
type TrendFilter struct {
	Platform *platform.Platform
	Limit    int
}

// AnalyticsPostgres stores trends, competitor watches and their snapshots
type AnalyticsPostgres struct {
	pool *pgxpool.Pool
}

// NewAnalyticsPostgres creates a new PostgreSQL analytics repository
func NewAnalyticsPostgres(pool *pgxpool.Pool) *AnalyticsPostgres {
	return &AnalyticsPostgres{pool: pool}
}

// UpsertTrends stores collected trends. A keyword seen again on the same
// platform has its heat and category refreshed.
func (r *AnalyticsPostgres) UpsertTrends(ctx context.Context, items []entity.TrendItem) error {
	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		id := it.ID
		if id == "" {
			id = uuid.New().String()
		}
		batch.Queue(`
			INSERT INTO market_trends (id, platform, keyword, heat, category, collected_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (platform, keyword) DO UPDATE SET
				heat = EXCLUDED.heat,
				category = EXCLUDED.category,
				collected_at = EXCLUDED.collected_at`,
			id, string(it.Platform), it.Keyword, it.Heat, it.Category, it.CollectedAt,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting trends: %w", err)
	}
	return nil
}

// ListTrends returns the hottest stored trends
func (r *AnalyticsPostgres) ListTrends(ctx context.Context, filter TrendFilter) ([]entity.TrendItem, error) {
	query := `SELECT id, platform, keyword, heat, category, collected_at FROM market_trends`
	args := []interface{}{}
	argNum := 1

	if filter.Platform != nil {
		query += fmt.Sprintf(" WHERE platform = $%d", argNum)
		args = append(args, string(*filter.Platform))
		argNum++
	}

	query += " ORDER BY heat DESC, keyword"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trends: %w", err)
	}
	defer rows.Close()

	items := []entity.TrendItem{}
	for rows.Next() {
		var it entity.TrendItem
		var p string
		if err := rows.Scan(&it.ID, &p, &it.Keyword, &it.Heat, &it.Category, &it.CollectedAt); err != nil {
			return nil, fmt.Errorf("scanning trend: %w", err)
		}
		it.Platform = platform.Platform(p)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trends: %w", err)
	}

	return items, nil
}

// CreateWatch inserts a competitor watch. An existing watch for the same
// user, platform and case-insensitive name yields ErrWatchExists.
func (r *AnalyticsPostgres) CreateWatch(ctx context.Context, w *entity.CompetitorWatch) error {
	query := `
		INSERT INTO competitor_watches (id, user_id, competitor_name, platform, account_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		w.ID,
		w.UserID,
		w.CompetitorName,
		string(w.Platform),
		w.AccountURL,
		w.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return entity.ErrWatchExists
		}
		return fmt.Errorf("inserting competitor watch: %w", err)
	}

	return nil
}

const watchColumns = `w.id, w.user_id, w.competitor_name, w.platform, w.account_url, w.last_checked_at, w.created_at`

// GetWatch retrieves a watch by ID
func (r *AnalyticsPostgres) GetWatch(ctx context.Context, id string) (*entity.CompetitorWatch, error) {
	query := `SELECT ` + watchColumns + ` FROM competitor_watches w WHERE w.id = $1`

	w, err := scanWatch(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning competitor watch: %w", err)
	}

	return w, nil
}

// FindWatch retrieves the watch of a competitor identity
func (r *AnalyticsPostgres) FindWatch(ctx context.Context, userID string, p platform.Platform, name string) (*entity.CompetitorWatch, error) {
	query := `
		SELECT ` + watchColumns + `
		FROM competitor_watches w
		WHERE w.user_id = $1 AND w.platform = $2 AND lower(w.competitor_name) = lower($3)
	`

	w, err := scanWatch(r.pool.QueryRow(ctx, query, userID, string(p), name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning competitor watch: %w", err)
	}

	return w, nil
}

// ListWatches returns the user's watches, each with its latest snapshot
func (r *AnalyticsPostgres) ListWatches(ctx context.Context, userID string) ([]entity.CompetitorWatch, error) {
	query := `
		SELECT ` + watchColumns + `,
		       s.id, s.follower_count, s.post_count, s.avg_engagement, s.recent_posts, s.collected_at
		FROM competitor_watches w
		LEFT JOIN LATERAL (
			SELECT id, follower_count, post_count, avg_engagement, recent_posts, collected_at
			FROM competitor_snapshots
			WHERE watch_id = w.id
			ORDER BY collected_at DESC
			LIMIT 1
		) s ON true
		WHERE w.user_id = $1
		ORDER BY w.created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying competitor watches: %w", err)
	}
	defer rows.Close()

	watches := []entity.CompetitorWatch{}
	for rows.Next() {
		var w entity.CompetitorWatch
		var p string
		var snapID *string
		var followers, posts, engagement *int64
		var recent []byte
		var collectedAt *time.Time

		err := rows.Scan(
			&w.ID,
			&w.UserID,
			&w.CompetitorName,
			&p,
			&w.AccountURL,
			&w.LastCheckedAt,
			&w.CreatedAt,
			&snapID,
			&followers,
			&posts,
			&engagement,
			&recent,
			&collectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning competitor watch: %w", err)
		}
		w.Platform = platform.Platform(p)

		if snapID != nil {
			s := &entity.CompetitorSnapshot{
				ID:            *snapID,
				WatchID:       w.ID,
				FollowerCount: deref(followers),
				PostCount:     deref(posts),
				AvgEngagement: deref(engagement),
			}
			if collectedAt != nil {
				s.CollectedAt = *collectedAt
			}
			if len(recent) > 0 {
				if err := json.Unmarshal(recent, &s.RecentPosts); err != nil {
					return nil, fmt.Errorf("decoding recent posts: %w", err)
				}
			}
			w.LatestSnapshot = s
		}

		watches = append(watches, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating competitor watches: %w", err)
	}

	return watches, nil
}

// AddSnapshot stores a snapshot and touches the watch's last check time
func (r *AnalyticsPostgres) AddSnapshot(ctx context.Context, s *entity.CompetitorSnapshot) error {
	posts := s.RecentPosts
	if posts == nil {
		posts = []platform.CompetitorPost{}
	}
	recent, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("encoding recent posts: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO competitor_snapshots (id, watch_id, follower_count, post_count, avg_engagement, recent_posts, collected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID,
		s.WatchID,
		s.FollowerCount,
		s.PostCount,
		s.AvgEngagement,
		recent,
		s.CollectedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE competitor_watches SET last_checked_at = $2 WHERE id = $1`, s.WatchID, s.CollectedAt)
	if err != nil {
		return fmt.Errorf("touching competitor watch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing snapshot: %w", err)
	}
	return nil
}

func scanWatch(row pgx.Row) (*entity.CompetitorWatch, error) {
	var w entity.CompetitorWatch
	var p string

	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.CompetitorName,
		&p,
		&w.AccountURL,
		&w.LastCheckedAt,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Platform = platform.Platform(p)
	return &w, nil
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
