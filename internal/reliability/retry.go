package reliability

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrMaxAttemptsExceeded is wrapped into the error returned when a retried
// operation never succeeds.
var ErrMaxAttemptsExceeded = errors.New("retry: maximum attempts exceeded")

// RetryPolicy decides whether and when a failed submission is attempted
// again.
type RetryPolicy interface {
	// ShouldRetry reports whether attempt (counting from 0) should be
	// retried after err, and after what delay.
	ShouldRetry(attempt int, err error) (bool, time.Duration)
}

// ExponentialBackoff retries with exponentially growing delays and optional
// jitter.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int
	Jitter          bool
}

// NewExponentialBackoff creates an exponential backoff policy with jitter.
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxAttempts int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxAttempts,
		Jitter:          true,
	}
}

// ShouldRetry implements RetryPolicy.
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= e.MaxAttempts {
		return false, 0
	}
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))
	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}
	if e.Jitter {
		delay *= 0.85 + rand.Float64()*0.3
	}
	return true, time.Duration(delay)
}

// FixedDelay retries a fixed number of times with a constant delay.
type FixedDelay struct {
	Interval    time.Duration
	MaxAttempts int
}

// NewFixedDelay creates a fixed-delay policy.
func NewFixedDelay(interval time.Duration, maxAttempts int) *FixedDelay {
	return &FixedDelay{Interval: interval, MaxAttempts: maxAttempts}
}

// ShouldRetry implements RetryPolicy.
func (f *FixedDelay) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= f.MaxAttempts {
		return false, 0
	}
	return true, f.Interval
}

// Retry runs fn until it succeeds, the policy gives up, or the context is
// cancelled.
func Retry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		retry, delay := policy.ShouldRetry(attempt, lastErr)
		if !retry {
			if attempt > 0 {
				return errors.Join(ErrMaxAttemptsExceeded, lastErr)
			}
			return lastErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
