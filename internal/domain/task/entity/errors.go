package entity

import "errors"

// Domain errors for publish tasks
var (
	// Validation errors
	ErrInvalidContentType  = errors.New("contentType must be one of VIDEO, IMAGE, TEXT")
	ErrEmptyTitle          = errors.New("title is required")
	ErrTitleTooLong        = errors.New("title exceeds maximum length of 200 characters")
	ErrNoPlatforms         = errors.New("at least one target platform is required")
	ErrNoAccounts          = errors.New("at least one account must be selected")
	ErrInvalidPublishType  = errors.New("publishType must be immediate or scheduled")
	ErrScheduledTimeInPast = errors.New("scheduled time must be in the future")
	ErrInvalidStatus       = errors.New("invalid task status")

	// Account selection errors; messages are returned to clients verbatim
	ErrNoActiveAccounts  = errors.New("No valid active accounts found")
	ErrInactiveAccounts  = errors.New("Some accounts are invalid or inactive")
	ErrPlatformUncovered = errors.New("No accounts available for platforms")

	// Business logic errors
	ErrTaskNotFound     = errors.New("task not found")
	ErrDuplicateTask    = errors.New("task with this idempotency key already exists")
	ErrTaskCompleted    = errors.New("Cannot cancel completed task")
	ErrTaskCancelled    = errors.New("Task already cancelled")
	ErrTaskFinished     = errors.New("Task already finished")
	ErrSubmissionFailed = errors.New("failed to queue publish jobs")
)
