package entity

import (
	"time"

	"github.com/vadim/neo-publish/internal/platform"
)

// Status is the credential state of a linked social account
type Status string

const (
	StatusActive              Status = "ACTIVE"
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusCookieExpired       Status = "COOKIE_EXPIRED"
	StatusVerificationFailed  Status = "VERIFICATION_FAILED"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPendingVerification, StatusCookieExpired, StatusVerificationFailed:
		return true
	}
	return false
}

// Account is a platform account a user publishes through
type Account struct {
	ID                string            `json:"id"`
	UserID            string            `json:"userId"`
	Platform          platform.Platform `json:"platform"`
	PlatformAccountID string            `json:"platformAccountId"`
	PlatformUsername  string            `json:"platformUsername"`
	Status            Status            `json:"status"`
	// Cookie is sealed at rest and never serialized
	Cookie          string     `json:"-"`
	LastVerifiedAt  *time.Time `json:"lastVerifiedAt,omitempty"`
	CookieExpiresAt *time.Time `json:"cookieExpiresAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// IsActive returns true if the account can be published to
func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}
