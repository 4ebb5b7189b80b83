package httpclient

import (
	"fmt"
	"time"
)

// RetryableError is what Do returns once a provider deployment's transient
// HTTP failures outlast Client.maxRetries. The router (spec §4.5) decides
// whether to fall back to another deployment or cool this one down; it
// inspects RetryAfter to size that cooldown rather than falling back to a
// fixed duration.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d: %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable always reports true: this type only ever wraps exhausted
// retry attempts, never a non-retryable one.
func (e *RetryableError) IsRetryable() bool {
	return true
}
