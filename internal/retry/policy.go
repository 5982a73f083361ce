package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Default policy values for external calls (price source, venue).
const (
	DefaultMaxAttempts    = 3
	DefaultBaseDelay      = 2 * time.Second
	DefaultMaxDelay       = 10 * time.Second
	DefaultMultiplier     = 2.0
	DefaultPerCallTimeout = 10 * time.Second
)

// ErrExhausted is returned when every attempt allowed by the policy
// failed. The last attempt's error is wrapped alongside it.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy is an explicit, injectable retry schedule for external calls.
// The zero value is unusable; use Default() or construct all fields.
type Policy struct {
	MaxAttempts    int           // total attempts including the first
	BaseDelay      time.Duration // delay before the second attempt
	MaxDelay       time.Duration // backoff ceiling
	Multiplier     float64       // delay growth factor between attempts
	PerCallTimeout time.Duration // deadline applied to each attempt, 0 disables
}

// Default returns the engine-wide external call policy: three attempts,
// 2s base delay, doubling, bounded per-attempt timeout.
func Default() Policy {
	return Policy{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		Multiplier:     DefaultMultiplier,
		PerCallTimeout: DefaultPerCallTimeout,
	}
}

// Do runs fn under the policy, sleeping with exponential backoff between
// attempts. Context cancellation aborts the wait immediately. Errors
// marked Permanent are returned without further attempts.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.BaseDelay
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		err := p.runOnce(ctx, fn)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}

	return fmt.Errorf("%s: %w: %w", op, ErrExhausted, lastErr)
}

// runOnce executes a single attempt under the per-call timeout.
func (p Policy) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.PerCallTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, p.PerCallTimeout)
	defer cancel()
	return fn(callCtx)
}

// permanentError marks an error as non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so Do returns it without retrying. Venue
// rejections and validation failures are permanent; transport faults
// are not.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
