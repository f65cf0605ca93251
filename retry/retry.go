// Package retry provides bounded exponential backoff for transient
// failures, used by the settler when talking to the ledger oracle.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds retry behavior parameters.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
}

// DefaultConfig is a conservative policy for settlement calls.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// WithRetry executes fn with exponential backoff. It retries only when
// isRetryable reports the error as transient; a nil isRetryable retries
// every error. Context cancellation aborts between attempts.
func WithRetry[T any](ctx context.Context, config Config, fn func(ctx context.Context) (T, error), isRetryable func(error) bool) (T, error) {
	var zero T

	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	delay := config.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if isRetryable != nil && !isRetryable(err) {
			return zero, err
		}
		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", config.MaxAttempts, lastErr)
}
