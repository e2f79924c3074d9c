package entity

import (
	"strings"
	"time"

	"github.com/vadim/neo-publish/internal/platform"
)

// DefaultTrendLimit is the number of trends returned when none is requested
const DefaultTrendLimit = 20

// MaxTrendLimit bounds trend listings
const MaxTrendLimit = 100

// TrendItem is a hot topic collected from a platform
type TrendItem struct {
	ID          string            `json:"id"`
	Platform    platform.Platform `json:"platform"`
	Keyword     string            `json:"keyword"`
	Heat        int64             `json:"heat"`
	Category    string            `json:"category"`
	CollectedAt time.Time         `json:"collectedAt"`
}

// CompetitorWatch is a competitor account a user monitors
type CompetitorWatch struct {
	ID             string            `json:"id"`
	UserID         string            `json:"userId"`
	CompetitorName string            `json:"competitorName"`
	Platform       platform.Platform `json:"platform"`
	AccountURL     string            `json:"accountUrl,omitempty"`
	LastCheckedAt  *time.Time        `json:"lastCheckedAt,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`

	LatestSnapshot *CompetitorSnapshot `json:"latestSnapshot,omitempty"`
}

// Validate checks the fields a client controls
func (w *CompetitorWatch) Validate() error {
	if strings.TrimSpace(w.CompetitorName) == "" {
		return ErrEmptyCompetitorName
	}
	if !w.Platform.Valid() {
		return platform.ErrUnknownPlatform
	}
	return nil
}

// CompetitorSnapshot is the state of a competitor at one point in time
type CompetitorSnapshot struct {
	ID            string                    `json:"id"`
	WatchID       string                    `json:"watchId"`
	FollowerCount int64                     `json:"followerCount"`
	PostCount     int64                     `json:"postCount"`
	AvgEngagement int64                     `json:"avgEngagement"`
	RecentPosts   []platform.CompetitorPost `json:"recentPosts"`
	CollectedAt   time.Time                 `json:"collectedAt"`
}
