package platform

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	defaultPublishSuccessRate = 0.95
	defaultCookieValidRate    = 0.9
	defaultCookieLifetime     = 30 * 24 * time.Hour
)

var trendCategories = []string{"科技", "生活", "美食", "时尚", "娱乐", "教育"}

// Simulated is a stand-in adapter used until real platform integrations exist.
// It sleeps for a random latency and succeeds with configurable probability.
type Simulated struct {
	platform           Platform
	publishSuccessRate float64
	cookieValidRate    float64
	minLatency         time.Duration
	maxLatency         time.Duration
	now                func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// SimulatedOption configures a Simulated adapter
type SimulatedOption func(*Simulated)

// WithSuccessRates overrides the publish success and cookie validity probabilities
func WithSuccessRates(publish, cookie float64) SimulatedOption {
	return func(s *Simulated) {
		s.publishSuccessRate = publish
		s.cookieValidRate = cookie
	}
}

// WithLatency sets the random latency range of every call
func WithLatency(lo, hi time.Duration) SimulatedOption {
	return func(s *Simulated) {
		s.minLatency = lo
		s.maxLatency = hi
	}
}

// WithSeed makes the adapter deterministic
func WithSeed(seed uint64) SimulatedOption {
	return func(s *Simulated) {
		s.rnd = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) SimulatedOption {
	return func(s *Simulated) {
		s.now = now
	}
}

// NewSimulated creates a simulated adapter for p
func NewSimulated(p Platform, opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		platform:           p,
		publishSuccessRate: defaultPublishSuccessRate,
		cookieValidRate:    defaultCookieValidRate,
		minLatency:         2 * time.Second,
		maxLatency:         5 * time.Second,
		now:                time.Now,
		rnd:                rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Platform returns the platform this adapter serves
func (s *Simulated) Platform() Platform {
	return s.platform
}

// Publish pretends to publish content and returns a mock URL
func (s *Simulated) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	if s.float() >= s.publishSuccessRate {
		return nil, fmt.Errorf("%w: simulated failure on %s", ErrPublishRejected, s.platform)
	}

	now := s.now()
	return &PublishResult{
		PublishURL:  fmt.Sprintf("https://%s/mock/%d", s.platform.Host(), now.UnixMilli()),
		PublishedAt: now,
	}, nil
}

// VerifyCredentials pretends to load the session cookie and check login state
func (s *Simulated) VerifyCredentials(ctx context.Context, cookie string) (*Verification, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	if cookie == "" || s.float() >= s.cookieValidRate {
		return &Verification{Valid: false, ExpiresAt: now}, nil
	}

	return &Verification{
		Valid:     true,
		ExpiresAt: now.Add(defaultCookieLifetime),
		AccountInfo: &AccountInfo{
			Username:      fmt.Sprintf("user_%d", now.UnixMilli()),
			Nickname:      fmt.Sprintf("Mock User %s", s.platform),
			Avatar:        fmt.Sprintf("https://avatar.example.com/%d.jpg", now.UnixMilli()),
			FollowerCount: s.intn(10000),
		},
	}, nil
}

// CollectTrends generates a plausible hot list
func (s *Simulated) CollectTrends(ctx context.Context, q TrendQuery) ([]Trend, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	count := q.Limit
	if count <= 0 {
		count = 20 + s.intn(30)
	}

	now := s.now()
	trends := make([]Trend, count)
	for i := range trends {
		keyword := q.Keyword
		if keyword == "" {
			keyword = fmt.Sprintf("热门话题%d", i+1)
		}
		category := q.Category
		if category == "" {
			category = trendCategories[s.intn(len(trendCategories))]
		}

		posts := make([]TrendPost, 5)
		for j := range posts {
			posts[j] = TrendPost{
				Title:  fmt.Sprintf("热门内容%d-%d", i, j+1),
				Author: fmt.Sprintf("作者%d", s.intn(1000)),
				Views:  int64(s.intn(100000)),
				Likes:  int64(s.intn(10000)),
				URL:    fmt.Sprintf("https://%s/post/%d-%d", s.platform.Host(), now.UnixMilli(), j),
			}
		}

		trends[i] = Trend{
			Keyword:  keyword,
			Heat:     int64(s.intn(1000000)),
			Category: category,
			RelatedTopics: []string{
				fmt.Sprintf("相关话题%d", i*3+1),
				fmt.Sprintf("相关话题%d", i*3+2),
				fmt.Sprintf("相关话题%d", i*3+3),
			},
			TopPosts: posts,
		}
	}
	return trends, nil
}

// CollectCompetitor generates a metrics snapshot for the competitor
func (s *Simulated) CollectCompetitor(ctx context.Context, q CompetitorQuery) (*CompetitorMetrics, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	posts := make([]CompetitorPost, 10)
	var engagement int64
	for i := range posts {
		posts[i] = CompetitorPost{
			Title:       fmt.Sprintf("%s的内容%d", q.Name, i+1),
			PublishedAt: now.AddDate(0, 0, -i),
			Views:       int64(s.intn(50000)),
			Likes:       int64(s.intn(5000)),
			Comments:    int64(s.intn(500)),
			Shares:      int64(s.intn(200)),
			URL:         fmt.Sprintf("https://%s/%s/post%d", s.platform.Host(), q.Name, i+1),
		}
		engagement += posts[i].Likes + posts[i].Comments + posts[i].Shares
	}

	return &CompetitorMetrics{
		FollowerCount: int64(10000 + s.intn(90000)),
		PostCount:     int64(100 + s.intn(900)),
		AvgEngagement: engagement / int64(len(posts)),
		RecentPosts:   posts,
	}, nil
}

func (s *Simulated) wait(ctx context.Context) error {
	d := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		d += time.Duration(s.float() * float64(span))
	}
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Simulated) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}

func (s *Simulated) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.IntN(n)
}
