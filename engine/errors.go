/*
errors.go - Centralized error types for the engine and its collaborators

PURPOSE:

	Sentinel errors in one place, consumed with errors.Is(). Store and
	pipeline packages wrap these with additional context.

SEE ALSO:
  - recon/pipeline.go: wraps ErrExternalSource / ErrBatchRolledBack
  - store/sqlite:      wraps ErrNotFound
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidDay is returned when a date string cannot be parsed.
	ErrInvalidDay = errors.New("invalid day")

	// ErrInvalidClock is returned when a time-of-day string cannot be parsed.
	ErrInvalidClock = errors.New("invalid clock time")

	// ErrUnknownCategory is returned for movement categories outside ST/SS/AP/CM.
	ErrUnknownCategory = errors.New("unknown movement category")

	// ErrMixedWorkerDay is returned when a single worker-day batch contains
	// events for more than one worker or day.
	ErrMixedWorkerDay = errors.New("events span multiple worker-days")

	// ErrExternalSource is returned when the external time source cannot be
	// queried. The whole reconciliation pass fails fast on it.
	ErrExternalSource = errors.New("external time source unavailable")

	// ErrBatchRolledBack is returned when a persistence failure forced the
	// batch's writes to roll back.
	ErrBatchRolledBack = errors.New("batch rolled back")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidStatus is returned on an unknown anomaly status transition.
	ErrInvalidStatus = errors.New("invalid anomaly status")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// BatchWriteError reports how many rows a rolled-back batch attempted.
// Committed is always 0 after rollback; the fields exist so callers can
// report attempted-versus-committed without re-counting.
type BatchWriteError struct {
	Attempted int
	Committed int
	Cause     error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("batch write failed: %d attempted, %d committed: %v",
		e.Attempted, e.Committed, e.Cause)
}

func (e *BatchWriteError) Unwrap() error { return ErrBatchRolledBack }

// IsClientError reports whether the error is due to invalid input rather
// than a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDay) ||
		errors.Is(err, ErrInvalidClock) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrInvalidStatus)
}
