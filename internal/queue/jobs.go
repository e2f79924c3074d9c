package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/vadim/neo-publish/internal/platform"
)

// JobState is the broker-side lifecycle state of a job
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobDelayed   JobState = "delayed"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Finished reports whether the job reached a terminal state
func (s JobState) Finished() bool {
	return s == JobCompleted || s == JobFailed
}

// JobHandle is returned when a job is submitted
type JobHandle struct {
	ID    string   `json:"id"`
	Queue Name     `json:"queue"`
	State JobState `json:"state"`
	// Duplicate is set when a job with the same id already existed
	Duplicate bool `json:"duplicate"`
}

// JobStatus is a point-in-time view of a job
type JobStatus struct {
	ID            string          `json:"id"`
	Queue         Name            `json:"queue"`
	State         JobState        `json:"state"`
	Progress      int             `json:"progress"`
	AttemptsMade  int             `json:"attemptsMade"`
	MaxAttempts   int             `json:"maxAttempts"`
	LastError     string          `json:"lastError,omitempty"`
	NextProcessAt *time.Time      `json:"nextProcessAt,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	FailedAt      *time.Time      `json:"failedAt,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
}

// JobResult is what workers write back while a job runs and when it finishes
type JobResult struct {
	Progress int             `json:"progress"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// PublishJobData is the payload of one (platform, account) publish job
type PublishJobData struct {
	TaskID         string            `json:"taskId"`
	UserID         string            `json:"userId"`
	Platform       platform.Platform `json:"platform"`
	AccountID      string            `json:"accountId"`
	Content        platform.Content  `json:"content"`
	PublishType    string            `json:"publishType"`
	ScheduledAt    *time.Time        `json:"scheduledAt,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey"`
}

// VerifyJobData is the payload of a credentials check
type VerifyJobData struct {
	AccountID string            `json:"accountId"`
	Platform  platform.Platform `json:"platform"`
	UserID    string            `json:"userId"`
}

// TrendJobData is the payload of a trend collection run
type TrendJobData struct {
	UserID         string            `json:"userId,omitempty"`
	Platform       platform.Platform `json:"platform"`
	Keyword        string            `json:"keyword,omitempty"`
	Category       string            `json:"category,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
}

// CompetitorJobData is the payload of a competitor monitoring run
type CompetitorJobData struct {
	WatchID        string            `json:"watchId"`
	UserID         string            `json:"userId"`
	CompetitorName string            `json:"competitorName"`
	Platform       platform.Platform `json:"platform"`
	AccountURL     string            `json:"accountUrl,omitempty"`
}

// PublishJobID is stable across retries and resubmissions of the same task
func PublishJobID(idempotencyKey string, p platform.Platform, accountID string) string {
	return idempotencyKey + ":" + string(p) + ":" + accountID
}

// VerifyJobID allows at most one live verification per account
func VerifyJobID(accountID string) string {
	return "verify:" + accountID
}

// CompetitorJobID is derived from the competitor identity, so repeated
// requests for the same competitor collapse into one live job
func CompetitorJobID(userID string, p platform.Platform, competitorName string) string {
	name := strings.ToLower(strings.TrimSpace(competitorName))
	sum := sha256.Sum256([]byte(userID + "\x00" + string(p) + "\x00" + name))
	return "competitor:" + hex.EncodeToString(sum[:16])
}
