package poster

import (
	"context"
	"fmt"
	"time"
)

// Action tells the retry loop what to do with an error.
type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, use normal backoff
	After               // rate-limited, use longer backoff
)

// RetryPolicy bounds the retry loop.
type RetryPolicy struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	RateLimitBackoff time.Duration
	OnRetry          func(attempt int, err error, backoff time.Duration)
}

// DefaultRetryPolicy is used by posters unless overridden.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:      3,
	InitialBackoff:   time.Second,
	RateLimitBackoff: 5 * time.Second,
}

// Classify maps an error to a retry action.
type Classify func(err error) Action

// PermanentError wraps an error that was not retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func retryDo[T any](ctx context.Context, p RetryPolicy, classify Classify, op func() (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		action := classify(err)
		if action == Stop {
			return zero, &PermanentError{Err: err}
		}

		if attempt >= p.MaxAttempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxAttempts, err)
		}

		if action == After {
			backoff = p.RateLimitBackoff
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

// classifyStatus maps an HTTP status code to a retry action.
func classifyStatus(code int) Action {
	switch {
	case code == 429:
		return After
	case code >= 500:
		return Retry
	default:
		return Stop
	}
}
