// Package resilience provides bounded retry and circuit breaking for calls to
// external data providers.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff.
type RetryConfig struct {
	// Retries is the number of attempts made after the first one fails.
	// Zero means a single attempt.
	Retries int

	// BaseDelay is the wait before the first retry; it doubles on each
	// subsequent retry. Default: 500ms.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff wait. Default: 30s.
	MaxDelay time.Duration

	// JitterFraction randomizes each delay by ±fraction. Zero disables jitter.
	JitterFraction float64

	// AttemptTimeout bounds each individual attempt. An attempt that hits the
	// deadline is aborted and counted as a failed attempt. Zero disables it.
	AttemptTimeout time.Duration

	// ShouldRetry overrides the default policy, which retries everything
	// except errors marked with Permanent.
	ShouldRetry func(err error) bool

	// OnRetry is called before each backoff wait with the 1-based attempt
	// number that just failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns the retry policy used for skip-trace calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Retries:        2,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.2,
	}
}

// Do runs fn with retries according to cfg.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal runs fn up to cfg.Retries+1 times and returns the first successful
// value. After the final failed attempt the last error is returned wrapped.
// Cancellation of ctx stops retrying immediately.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	var lastErr error
	attempts := cfg.Retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		val, err := runAttempt(ctx, cfg.AttemptTimeout, fn)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, eris.Wrap(lastErr, "retry: context done")
		}
		if !cfg.ShouldRetry(lastErr) {
			return zero, lastErr
		}
		if attempt == attempts-1 {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		timer := time.NewTimer(Backoff(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, eris.Wrap(lastErr, "retry: context done")
		case <-timer.C:
		}
	}

	return zero, eris.Wrapf(lastErr, "retry: gave up after %d attempts", attempts)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	val, err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		// The attempt deadline fired, not the caller's: retryable.
		return val, NewTransientError(eris.Wrapf(err, "attempt timed out after %s", timeout), 0)
	}
	return val, err
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = func(err error) bool { return !IsPermanent(err) }
	}
	return cfg
}

// Backoff returns the wait after the given 0-based failed attempt:
// BaseDelay * 2^attempt, capped at MaxDelay, with optional jitter.
func Backoff(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.JitterFraction > 0 {
		spread := delay * cfg.JitterFraction
		delay += (rand.Float64()*2 - 1) * spread
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying provider call",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
