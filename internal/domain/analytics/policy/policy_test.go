package policy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadim/neo-publish/internal/domain/analytics/dao"
	"github.com/vadim/neo-publish/internal/domain/analytics/entity"
	"github.com/vadim/neo-publish/internal/platform"
	"github.com/vadim/neo-publish/internal/queue"
)

type memRepo struct {
	trends    map[string]entity.TrendItem
	watches   []*entity.CompetitorWatch
	snapshots []entity.CompetitorSnapshot
}

func newMemRepo() *memRepo {
	return &memRepo{trends: map[string]entity.TrendItem{}}
}

func (m *memRepo) UpsertTrends(_ context.Context, items []entity.TrendItem) error {
	for _, it := range items {
		m.trends[string(it.Platform)+"/"+it.Keyword] = it
	}
	return nil
}

func (m *memRepo) ListTrends(_ context.Context, f dao.TrendFilter) ([]entity.TrendItem, error) {
	out := []entity.TrendItem{}
	for _, it := range m.trends {
		if f.Platform == nil || it.Platform == *f.Platform {
			out = append(out, it)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memRepo) CreateWatch(_ context.Context, w *entity.CompetitorWatch) error {
	for _, ex := range m.watches {
		if ex.UserID == w.UserID && ex.Platform == w.Platform && strings.EqualFold(ex.CompetitorName, w.CompetitorName) {
			return entity.ErrWatchExists
		}
	}
	cp := *w
	m.watches = append(m.watches, &cp)
	return nil
}

func (m *memRepo) GetWatch(_ context.Context, id string) (*entity.CompetitorWatch, error) {
	for _, w := range m.watches {
		if w.ID == id {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) FindWatch(_ context.Context, userID string, p platform.Platform, name string) (*entity.CompetitorWatch, error) {
	for _, w := range m.watches {
		if w.UserID == userID && w.Platform == p && strings.EqualFold(w.CompetitorName, name) {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRepo) ListWatches(_ context.Context, userID string) ([]entity.CompetitorWatch, error) {
	out := []entity.CompetitorWatch{}
	for _, w := range m.watches {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (m *memRepo) AddSnapshot(_ context.Context, s *entity.CompetitorSnapshot) error {
	m.snapshots = append(m.snapshots, *s)
	for _, w := range m.watches {
		if w.ID == s.WatchID {
			at := s.CollectedAt
			w.LastCheckedAt = &at
		}
	}
	return nil
}

// fakeQueue collapses competitor jobs by their deterministic id
type fakeQueue struct {
	trends      []queue.TrendJobData
	competitors map[string]queue.CompetitorJobData
	err         error
}

func (f *fakeQueue) AddTrendJob(_ context.Context, d queue.TrendJobData) (*queue.JobHandle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.trends = append(f.trends, d)
	return &queue.JobHandle{ID: fmt.Sprintf("trend:%d", len(f.trends)), Queue: queue.Trend, State: queue.JobWaiting}, nil
}

func (f *fakeQueue) AddCompetitorJob(_ context.Context, d queue.CompetitorJobData) (*queue.JobHandle, error) {
	if f.err != nil {
		return nil, f.err
	}
	id := queue.CompetitorJobID(d.UserID, d.Platform, d.CompetitorName)
	_, dup := f.competitors[id]
	f.competitors[id] = d
	return &queue.JobHandle{ID: id, Queue: queue.Competitor, State: queue.JobWaiting, Duplicate: dup}, nil
}

func newTestPolicy() (*Policy, *memRepo, *fakeQueue) {
	repo := newMemRepo()
	q := &fakeQueue{competitors: map[string]queue.CompetitorJobData{}}
	p := New(repo, q, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p, repo, q
}

func TestWatchCompetitorIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p, repo, q := newTestPolicy()

	in := WatchCompetitorInput{UserID: "u", CompetitorName: "RivalCo", Platform: platform.Douyin}

	first, err := p.WatchCompetitor(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.Existing)
	assert.False(t, first.Job.Duplicate)

	in.CompetitorName = "  rivalco "
	second, err := p.WatchCompetitor(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.Existing)
	assert.Equal(t, first.Watch.ID, second.Watch.ID)
	assert.Equal(t, first.Job.ID, second.Job.ID)
	assert.True(t, second.Job.Duplicate)

	assert.Len(t, repo.watches, 1)
	assert.Len(t, q.competitors, 1)
}

func TestWatchCompetitorValidation(t *testing.T) {
	p, _, _ := newTestPolicy()

	_, err := p.WatchCompetitor(context.Background(), WatchCompetitorInput{UserID: "u", CompetitorName: " ", Platform: platform.Weibo})
	assert.ErrorIs(t, err, entity.ErrEmptyCompetitorName)

	_, err = p.WatchCompetitor(context.Background(), WatchCompetitorInput{UserID: "u", CompetitorName: "x", Platform: "MYSPACE"})
	assert.ErrorIs(t, err, platform.ErrUnknownPlatform)
}

func TestWatchCompetitorKeepsWatchWhenQueueIsDown(t *testing.T) {
	p, repo, q := newTestPolicy()
	q.err = queue.ErrBrokerUnavailable

	out, err := p.WatchCompetitor(context.Background(), WatchCompetitorInput{UserID: "u", CompetitorName: "x", Platform: platform.Weibo})
	assert.ErrorIs(t, err, queue.ErrBrokerUnavailable)
	require.NotNil(t, out)
	assert.Len(t, repo.watches, 1)
}

func TestStoreTrendsReturnsTopTen(t *testing.T) {
	p, repo, _ := newTestPolicy()

	var trends []platform.Trend
	for i := 1; i <= 15; i++ {
		trends = append(trends, platform.Trend{Keyword: fmt.Sprintf("kw-%d", i), Heat: int64(i * 100)})
	}
	trends = append(trends, platform.Trend{Keyword: "  ", Heat: 1_000_000})

	top, err := p.StoreTrends(context.Background(), platform.Bilibili, trends)
	require.NoError(t, err)

	require.Len(t, top, TopTrends)
	assert.Equal(t, "kw-15", top[0].Keyword)
	assert.Equal(t, int64(1500), top[0].Heat)
	assert.Equal(t, "kw-6", top[9].Keyword)
	assert.Len(t, repo.trends, 15)
}

func TestRequestTrends(t *testing.T) {
	p, _, q := newTestPolicy()

	_, err := p.RequestTrends(context.Background(), RequestTrendsInput{Platform: "FRIENDSTER"})
	assert.ErrorIs(t, err, platform.ErrUnknownPlatform)

	job, err := p.RequestTrends(context.Background(), RequestTrendsInput{UserID: "u", Platform: platform.TikTok, Keyword: " dance "})
	require.NoError(t, err)
	assert.Equal(t, queue.Trend, job.Queue)
	require.Len(t, q.trends, 1)
	assert.Equal(t, "dance", q.trends[0].Keyword)
}

func TestListTrendsLimit(t *testing.T) {
	p, repo, _ := newTestPolicy()
	for i := 0; i < 30; i++ {
		repo.trends[fmt.Sprint(i)] = entity.TrendItem{Platform: platform.Weibo, Keyword: fmt.Sprint(i)}
	}

	items, err := p.ListTrends(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Len(t, items, entity.DefaultTrendLimit)

	bad := platform.Platform("ORKUT")
	_, err = p.ListTrends(context.Background(), &bad, 5)
	assert.ErrorIs(t, err, platform.ErrUnknownPlatform)
}

func TestRecordSnapshot(t *testing.T) {
	ctx := context.Background()
	p, repo, _ := newTestPolicy()

	out, err := p.WatchCompetitor(ctx, WatchCompetitorInput{UserID: "u", CompetitorName: "x", Platform: platform.Weibo})
	require.NoError(t, err)

	_, err = p.GetWatch(ctx, "missing")
	assert.ErrorIs(t, err, entity.ErrWatchNotFound)

	snap, err := p.RecordSnapshot(ctx, out.Watch.ID, &platform.CompetitorMetrics{FollowerCount: 1200, PostCount: 40})
	require.NoError(t, err)
	assert.Equal(t, int64(1200), snap.FollowerCount)

	w, err := p.GetWatch(ctx, out.Watch.ID)
	require.NoError(t, err)
	require.NotNil(t, w.LastCheckedAt)
	assert.Equal(t, snap.CollectedAt, *w.LastCheckedAt)
	assert.Len(t, repo.snapshots, 1)
}
