package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrExtractionCallFailed means the capability itself returned an error.
	ErrExtractionCallFailed = errors.New("extraction call failed")
	// ErrExtractionSchemaViolation means the call succeeded but the response
	// is not a conforming tax return record.
	ErrExtractionSchemaViolation = errors.New("extraction response violates schema")
)

// RetryableError indicates a transient upstream failure (rate limit or
// server error). The pipeline does not retry; callers may resubmit.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable reports whether err wraps a RetryableError.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
