package board

import "github.com/cockroachdb/errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStale is returned when a conditional update finds the record in another status.
	ErrStale = errors.New("application status changed concurrently")
)
