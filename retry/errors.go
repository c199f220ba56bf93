package retry

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is wrapped by ExhaustedError.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExhaustedError is returned once every attempt failed with a retryable outcome.
type ExhaustedError struct {
	Attempts   int
	StatusCode int   // last HTTP status, 0 for transport errors
	Err        error // last underlying error, may be nil
}

func (e *ExhaustedError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s after %d attempts: last status %d", ErrRetriesExhausted, e.Attempts, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("%s after %d attempts", ErrRetriesExhausted, e.Attempts)
	}
}

func (e *ExhaustedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRetriesExhausted}
	}
	return []error{ErrRetriesExhausted, e.Err}
}
