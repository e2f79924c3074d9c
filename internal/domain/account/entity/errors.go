package entity

import "errors"

// Domain errors for social accounts
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists for this platform")
	ErrAccountInactive   = errors.New("account is not active")
	ErrAccountInUse      = errors.New("cannot delete account with active publish tasks")
	ErrInvalidStatus     = errors.New("invalid account status")
	ErrMissingCredential = errors.New("cookie is required")
)
