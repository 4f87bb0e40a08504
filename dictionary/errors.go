package dictionary

import (
	"errors"
	"fmt"
	"time"
)

// The closed set of error kinds a dictionary call can surface. Configuration
// errors are config.ErrInvalidConfig.
var (
	// ErrUnsupported is returned when the source cannot load selectively or a
	// hierarchy operation is called on an incompatible schema.
	ErrUnsupported = errors.New("operation not supported by dictionary")

	// ErrTypeMismatch is returned when the hierarchical attribute is not a
	// 64-bit unsigned integer.
	ErrTypeMismatch = errors.New("hierarchical attribute must be uint64")

	// ErrQueueFull is returned when a push could not claim a queue slot
	// within the push timeout.
	ErrQueueFull = errors.New("update queue is full")

	// ErrUpdateTimeout is returned when waiting for an update exhausted the
	// query wait timeout.
	ErrUpdateTimeout = errors.New("timed out waiting for update to finish")

	// ErrCancelled is returned for units still pending when the queue stops.
	ErrCancelled = errors.New("update cancelled: queue stopped")
)

// UpdateFailedError wraps an error raised by the source stream during an
// update
type UpdateFailedError struct {
	Dictionary string
	Err        error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("update failed for dictionary %s: %v", e.Dictionary, e.Err)
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

// BackoffError is returned when an update is declined because a previous
// failure scheduled a retry in the future
type BackoffError struct {
	Dictionary string
	RetryAt    time.Time
}

func (e *BackoffError) Error() string {
	return fmt.Sprintf("could not update dictionary %s now, nearest update is scheduled at %s",
		e.Dictionary, e.RetryAt.Format(time.RFC3339))
}
