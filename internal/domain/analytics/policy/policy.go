package policy

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/neo-publish/internal/domain/analytics/dao"
	"github.com/vadim/neo-publish/internal/domain/analytics/entity"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
)

// TopTrends is the number of trends a collection run reports back
const TopTrends = 10

// Repository defines the analytics data access the policy needs
type Repository interface {
	UpsertTrends(ctx context.Context, items []entity.TrendItem) error
	ListTrends(ctx context.Context, filter dao.TrendFilter) ([]entity.TrendItem, error)
	CreateWatch(ctx context.Context, w *entity.CompetitorWatch) error
	GetWatch(ctx context.Context, id string) (*entity.CompetitorWatch, error)
	FindWatch(ctx context.Context, userID string, p platform.Platform, name string) (*entity.CompetitorWatch, error)
	ListWatches(ctx context.Context, userID string) ([]entity.CompetitorWatch, error)
	AddSnapshot(ctx context.Context, s *entity.CompetitorSnapshot) error
}

// JobQueue submits analytics jobs
type JobQueue interface {
	AddTrendJob(ctx context.Context, data queue.TrendJobData) (*queue.JobHandle, error)
	AddCompetitorJob(ctx context.Context, data queue.CompetitorJobData) (*queue.JobHandle, error)
}

// Policy orchestrates trend and competitor analytics
type Policy struct {
	repo   Repository
	queue  JobQueue
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new analytics policy
func New(repo Repository, q JobQueue, logger *slog.Logger) *Policy {
	return &Policy{
		repo:   repo,
		queue:  q,
		logger: logger,
		now:    time.Now,
	}
}

// RequestTrendsInput represents a trend collection request
type RequestTrendsInput struct {
	UserID         string
	Platform       platform.Platform
	Keyword        string
	Category       string
	IdempotencyKey string
}

// RequestTrends enqueues a trend collection run
func (p *Policy) RequestTrends(ctx context.Context, in RequestTrendsInput) (*queue.JobHandle, error) {
	if !in.Platform.Valid() {
		return nil, platform.ErrUnknownPlatform
	}

	return p.queue.AddTrendJob(ctx, queue.TrendJobData{
		UserID:         in.UserID,
		Platform:       in.Platform,
		Keyword:        strings.TrimSpace(in.Keyword),
		Category:       strings.TrimSpace(in.Category),
		IdempotencyKey: in.IdempotencyKey,
	})
}

// ListTrends returns stored trends, hottest first
func (p *Policy) ListTrends(ctx context.Context, pl *platform.Platform, limit int) ([]entity.TrendItem, error) {
	if pl != nil && !pl.Valid() {
		return nil, platform.ErrUnknownPlatform
	}
	if limit <= 0 {
		limit = entity.DefaultTrendLimit
	}
	if limit > entity.MaxTrendLimit {
		limit = entity.MaxTrendLimit
	}

	return p.repo.ListTrends(ctx, dao.TrendFilter{Platform: pl, Limit: limit})
}

// StoreTrends persists trends collected from a platform and returns the
// hottest TopTrends of them
func (p *Policy) StoreTrends(ctx context.Context, pl platform.Platform, trends []platform.Trend) ([]entity.TrendItem, error) {
	now := p.now()

	items := make([]entity.TrendItem, 0, len(trends))
	for _, t := range trends {
		if strings.TrimSpace(t.Keyword) == "" {
			continue
		}
		items = append(items, entity.TrendItem{
			ID:          uuid.New().String(),
			Platform:    pl,
			Keyword:     t.Keyword,
			Heat:        t.Heat,
			Category:    t.Category,
			CollectedAt: now,
		})
	}

	if err := p.repo.UpsertTrends(ctx, items); err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Heat > items[j].Heat })
	if len(items) > TopTrends {
		items = items[:TopTrends]
	}

	p.logger.Info("trends stored", "platform", pl, "count", len(trends))
	return items, nil
}

// WatchCompetitorInput represents a request to monitor a competitor
type WatchCompetitorInput struct {
	UserID         string
	CompetitorName string
	Platform       platform.Platform
	AccountURL     string
}

// WatchCompetitorOutput represents the watch and its monitoring job
type WatchCompetitorOutput struct {
	Watch    *entity.CompetitorWatch
	Job      *queue.JobHandle
	Existing bool
}

// WatchCompetitor creates a watch, or reuses the existing one for the same
// competitor, and enqueues a monitoring run. Repeated requests for one
// competitor share a single live job.
func (p *Policy) WatchCompetitor(ctx context.Context, in WatchCompetitorInput) (*WatchCompetitorOutput, error) {
	w := &entity.CompetitorWatch{
		ID:             uuid.New().String(),
		UserID:         in.UserID,
		CompetitorName: strings.TrimSpace(in.CompetitorName),
		Platform:       in.Platform,
		AccountURL:     strings.TrimSpace(in.AccountURL),
		CreatedAt:      p.now(),
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	out := &WatchCompetitorOutput{Watch: w}

	err := p.repo.CreateWatch(ctx, w)
	if errors.Is(err, entity.ErrWatchExists) {
		existing, err := p.repo.FindWatch(ctx, w.UserID, w.Platform, w.CompetitorName)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, entity.ErrWatchNotFound
		}
		out.Watch = existing
		out.Existing = true
	} else if err != nil {
		return nil, err
	}

	job, err := p.queue.AddCompetitorJob(ctx, queue.CompetitorJobData{
		WatchID:        out.Watch.ID,
		UserID:         out.Watch.UserID,
		CompetitorName: out.Watch.CompetitorName,
		Platform:       out.Watch.Platform,
		AccountURL:     out.Watch.AccountURL,
	})
	if err != nil {
		p.logger.Error("failed to queue competitor monitoring", "watch_id", out.Watch.ID, "error", err)
		return out, err
	}
	out.Job = job

	return out, nil
}

// ListWatches returns the user's watches with their latest snapshots
func (p *Policy) ListWatches(ctx context.Context, userID string) ([]entity.CompetitorWatch, error) {
	return p.repo.ListWatches(ctx, userID)
}

// GetWatch returns ErrWatchNotFound for an unknown watch
func (p *Policy) GetWatch(ctx context.Context, id string) (*entity.CompetitorWatch, error) {
	w, err := p.repo.GetWatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, entity.ErrWatchNotFound
	}
	return w, nil
}

// RecordSnapshot stores collected competitor metrics
func (p *Policy) RecordSnapshot(ctx context.Context, watchID string, m *platform.CompetitorMetrics) (*entity.CompetitorSnapshot, error) {
	s := &entity.CompetitorSnapshot{
		ID:            uuid.New().String(),
		WatchID:       watchID,
		FollowerCount: m.FollowerCount,
		PostCount:     m.PostCount,
		AvgEngagement: m.AvgEngagement,
		RecentPosts:   m.RecentPosts,
		CollectedAt:   p.now(),
	}

	if err := p.repo.AddSnapshot(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}
