package safety

import (
	"errors"
	"fmt"
	"time"
)

// Gate rejection errors. These surface to the user with actionable text and
// never reach the inference layer.
var (
	ErrRateLimited      = errors.New("rate limited")
	ErrSuspended        = errors.New("temporarily suspended")
	ErrInjectionBlocked = errors.New("message blocked")
)

// RateLimitError carries the retry-after hint for TOO_MANY_REQUESTS-class
// rejections.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// SuspensionError carries the remaining cooldown.
type SuspensionError struct {
	Remaining time.Duration
}

func (e *SuspensionError) Error() string {
	return fmt.Sprintf("temporarily suspended: try again in %s", e.Remaining.Round(time.Second))
}

func (e *SuspensionError) Unwrap() error { return ErrSuspended }
