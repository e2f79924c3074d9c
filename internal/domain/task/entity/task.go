package entity

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vadim/neo-publish/internal/platform"
)

// Status represents the lifecycle state of a publish task
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the task can no longer change
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ContentType represents the kind of content being published
type ContentType string

const (
	ContentTypeVideo ContentType = "VIDEO"
	ContentTypeImage ContentType = "IMAGE"
	ContentTypeText  ContentType = "TEXT"
)

// PublishType selects immediate or delayed publishing
type PublishType string

const (
	PublishTypeImmediate PublishType = "immediate"
	PublishTypeScheduled PublishType = "scheduled"
)

const (
	// MaxTitleLength is the title limit in characters
	MaxTitleLength = 200
	// CreditsPerAccount is charged for every selected account
	CreditsPerAccount = 10
)

// LastError is the most recent failure recorded on a task
type LastError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PlatformStat counts job outcomes of one platform
type PlatformStat struct {
	Total     int `json:"total"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
}

// Task is a request to publish one piece of content to many accounts
type Task struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	MvpID           string              `json:"mvpId,omitempty"`
	ContentType     ContentType         `json:"contentType"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Tags            []string            `json:"tags"`
	MediaURLs       []string            `json:"mediaUrls"`
	TargetPlatforms []platform.Platform `json:"targetPlatforms"`
	PublishType     PublishType         `json:"publishType"`
	ScheduledAt     *time.Time          `json:"scheduledAt,omitempty"`
	Status          Status              `json:"status"`
	Progress        int                 `json:"progress"`
	TotalJobs       int                 `json:"totalJobs"`
	PublishedCount  int                 `json:"publishedCount"`
	FailedCount     int                 `json:"failedCount"`
	CreditsCost     int                 `json:"creditsCost"`
	IdempotencyKey  string              `json:"idempotencyKey"`
	LastError       *LastError          `json:"lastError,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`

	PlatformStats map[platform.Platform]PlatformStat `json:"platformStats,omitempty"`
}

// Content returns the payload workers publish
func (t *Task) Content() platform.Content {
	return platform.Content{
		Type:        string(t.ContentType),
		Title:       t.Title,
		Description: t.Description,
		MediaURLs:   t.MediaURLs,
		Tags:        t.Tags,
	}
}

// Validate checks the task fields a client controls
func (t *Task) Validate(now time.Time) error {
	switch t.ContentType {
	case ContentTypeVideo, ContentTypeImage, ContentTypeText:
	default:
		return ErrInvalidContentType
	}

	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(t.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}

	if len(t.TargetPlatforms) == 0 {
		return ErrNoPlatforms
	}
	for _, p := range t.TargetPlatforms {
		if !p.Valid() {
			return platform.ErrUnknownPlatform
		}
	}

	switch t.PublishType {
	case PublishTypeImmediate:
	case PublishTypeScheduled:
		if t.ScheduledAt == nil || !t.ScheduledAt.After(now) {
			return ErrScheduledTimeInPast
		}
	default:
		return ErrInvalidPublishType
	}

	return nil
}

// Progress is the share of resolved jobs, rounded to a whole percent.
// It mirrors the progress expression in TaskPostgres.RecordResult.
func Progress(published, failed, total int) int {
	if total <= 0 {
		return 0
	}
	done := published + failed
	if done >= total {
		return 100
	}
	return (done*200 + total) / (total * 2)
}

// Job is one (platform, account) unit of a task
type Job struct {
	JobID       string            `json:"jobId"`
	TaskID      string            `json:"taskId"`
	Platform    platform.Platform `json:"platform"`
	AccountID   string            `json:"accountId"`
	ScheduledAt *time.Time        `json:"scheduledAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// LogStatus is the outcome of one publish attempt
type LogStatus string

const (
	LogStatusSuccess LogStatus = "SUCCESS"
	LogStatusFailed  LogStatus = "FAILED"
)

// PublishLog records how a job resolved. There is at most one per task and account.
type PublishLog struct {
	ID               string            `json:"id"`
	TaskID           string            `json:"taskId"`
	AccountID        string            `json:"accountId"`
	Platform         platform.Platform `json:"platform"`
	PlatformUsername string            `json:"platformUsername,omitempty"`
	Status           LogStatus         `json:"status"`
	PublishURL       string            `json:"publishUrl,omitempty"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	PublishedAt      *time.Time        `json:"publishedAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}
