package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCredentialsRejected means the platform refused the stored session
	ErrCredentialsRejected = errors.New("platform rejected account credentials")
	// ErrPublishRejected means the platform accepted the request but refused the content
	ErrPublishRejected = errors.New("platform rejected publication")
)

// Content is the payload published to a platform account
type Content struct {
	Type        string   `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	MediaURLs   []string `json:"mediaUrls,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// PublishRequest represents a single publish call for one account
type PublishRequest struct {
	AccountID         string
	PlatformAccountID string
	Cookie            string
	Content           Content
}

// PublishResult is what the platform returns after a successful publish
type PublishResult struct {
	PublishURL  string
	PublishedAt time.Time
}

// AccountInfo is profile data discovered while verifying credentials
type AccountInfo struct {
	Username      string `json:"username"`
	Nickname      string `json:"nickname"`
	Avatar        string `json:"avatar,omitempty"`
	FollowerCount int    `json:"followerCount"`
}

// Verification is the outcome of a credentials check
type Verification struct {
	Valid       bool
	ExpiresAt   time.Time
	AccountInfo *AccountInfo
}

// TrendQuery narrows trend collection
type TrendQuery struct {
	Keyword  string
	Category string
	Limit    int
}

// Trend is a single hot topic on a platform
type Trend struct {
	Keyword       string      `json:"keyword"`
	Heat          int64       `json:"heat"`
	Category      string      `json:"category"`
	RelatedTopics []string    `json:"relatedTopics,omitempty"`
	TopPosts      []TrendPost `json:"topPosts,omitempty"`
}

// TrendPost is a sample post attached to a trend
type TrendPost struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Views  int64  `json:"views"`
	Likes  int64  `json:"likes"`
	URL    string `json:"url"`
}

// CompetitorQuery identifies a competitor account
type CompetitorQuery struct {
	Name       string
	AccountURL string
}

// CompetitorMetrics is a snapshot of a competitor account
type CompetitorMetrics struct {
	FollowerCount int64            `json:"followerCount"`
	PostCount     int64            `json:"postCount"`
	AvgEngagement int64            `json:"avgEngagement"`
	RecentPosts   []CompetitorPost `json:"recentPosts"`
}

// CompetitorPost is a recent post of a competitor
type CompetitorPost struct {
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"publishedAt"`
	Views       int64     `json:"views"`
	Likes       int64     `json:"likes"`
	Comments    int64     `json:"comments"`
	Shares      int64     `json:"shares"`
	URL         string    `json:"url"`
}

// Adapter talks to a single social platform
type Adapter interface {
	Platform() Platform
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
	VerifyCredentials(ctx context.Context, cookie string) (*Verification, error)
	CollectTrends(ctx context.Context, q TrendQuery) ([]Trend, error)
	CollectCompetitor(ctx context.Context, q CompetitorQuery) (*CompetitorMetrics, error)
}

// Registry resolves the adapter for a platform
type Registry struct {
	douyin      Adapter
	xiaohongshu Adapter
	bilibili    Adapter
	weibo       Adapter
	tiktok      Adapter
	wechat      Adapter
}

// NewRegistry builds a registry where every platform is served by the adapter built by factory
func NewRegistry(factory func(Platform) Adapter) *Registry {
	return &Registry{
		douyin:      factory(Douyin),
		xiaohongshu: factory(Xiaohongshu),
		bilibili:    factory(Bilibili),
		weibo:       factory(Weibo),
		tiktok:      factory(TikTok),
		wechat:      factory(WeChat),
	}
}

// For returns the adapter serving p
func (r *Registry) For(p Platform) (Adapter, error) {
	var a Adapter
	switch p {
	case Douyin:
		a = r.douyin
	case Xiaohongshu:
		a = r.xiaohongshu
	case Bilibili:
		a = r.bilibili
	case Weibo:
		a = r.weibo
	case TikTok:
		a = r.tiktok
	case WeChat:
		a = r.wechat
	default:
		return nil, ErrUnknownPlatform
	}
	if a == nil {
		return nil, ErrUnknownPlatform
	}
	return a, nil
}
