package entity

import "errors"

// Domain errors for idea analysis
var (
	// ErrMissingIdea is returned to clients verbatim
	ErrMissingIdea           = errors.New("缺少创意标题或描述")
	ErrAllProvidersFailed    = errors.New("all AI providers failed")
	ErrProviderNotConfigured = errors.New("AI provider is not configured")
	ErrIncompleteAnalysis    = errors.New("analysis is missing required sections")
)
