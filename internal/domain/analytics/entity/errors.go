package entity

import "errors"

// Domain errors for analytics
var (
	ErrEmptyCompetitorName = errors.New("competitorName is required")
	ErrWatchExists         = errors.New("competitor is already monitored")
	ErrWatchNotFound       = errors.New("competitor watch not found")
)
