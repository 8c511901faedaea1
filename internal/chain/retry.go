package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

// Sentinel errors for retry classification.
var (
	ErrRetryable = &halerr.HalyardError{
		Code:     "retryable_error",
		Message:  "retryable error",
		ExitCode: halerr.ExitGeneral,
	}

	ErrTimeout = &halerr.HalyardError{
		Code:     "timeout",
		Message:  "operation timed out",
		ExitCode: halerr.ExitGeneral,
	}

	ErrRateLimited = &halerr.HalyardError{
		Code:     "rate_limited",
		Message:  "rate limited by upstream",
		ExitCode: halerr.ExitGeneral,
	}
)

// RetryConfig configures retry behavior for RPC calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig is 4 attempts with delays of roughly 1s, 2s, 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
	}
}

// Retry runs operation with the default backoff schedule. Only errors
// marked retryable trigger another attempt; anything else returns
// immediately. Broadcast is never retried through this path, since a
// transaction may have landed even when the RPC response was lost.
func Retry[T any](ctx context.Context, operation func() (T, error)) (T, error) {
	return RetryWithConfig(ctx, DefaultRetryConfig(), operation)
}

// RetryWithConfig runs operation with the given schedule.
func RetryWithConfig[T any](ctx context.Context, cfg RetryConfig, operation func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return result, err
		}
		if attempt < cfg.MaxAttempts-1 {
			timer := time.NewTimer(backoffDelay(attempt, cfg.BaseDelay, cfg.MaxDelay))
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, err)
}

// backoffDelay is exponential backoff with jitter in [delay/2, delay).
func backoffDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := baseDelay * (1 << attempt)
	if delay > maxDelay {
		delay = maxDelay
	}
	half := delay / 2
	return half + rand.N(half) //nolint:gosec // G404: jitter does not need cryptographic randomness
}

// IsRetryable reports whether the error should trigger another
// attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRetryable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ParseRetryAfter parses a Retry-After header given in seconds.
// Returns 0 if the header is absent or malformed.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// WrapRetryable marks an error as retryable.
func WrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}
