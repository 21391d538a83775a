package errs

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotConfigured marks a platform client missing required credentials.
	ErrNotConfigured = errors.New("not configured")
	// ErrPassInProgress is returned when an optimization pass is already running.
	ErrPassInProgress = errors.New("optimization pass already in progress")
)
