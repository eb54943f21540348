// Package retry runs an operation repeatedly until it succeeds, a
// non-retryable error occurs, the attempts are exhausted or the context is
// canceled.
//
// Two spacing strategies are supported. The default is exponential backoff,
// InitialBackoff * 2^(attempt-1), optionally capped by MaxBackoff and spread
// with Jitter. Setting Fixed waits exactly InitialBackoff between attempts,
// which is what short bounded polls want (waiting for a container's process
// tree to appear, or for a profiler to finish flushing its output file):
//
//	cfg := retry.Config{MaxRetries: 10, InitialBackoff: 100 * time.Millisecond, Fixed: true}
//	err := retry.Do(ctx, cfg, func() error {
//	    return findCandidates()
//	}, nil)
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Config defines the retry behavior.
//
// The zero value is not usable; MaxRetries and InitialBackoff must be set.
type Config struct {
	// MaxRetries is the maximum number of attempts. Must be greater than 0.
	MaxRetries int

	// InitialBackoff is the base wait between attempts. Must be greater than 0.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff. Zero means no cap.
	MaxBackoff time.Duration

	// Jitter adds randomness to exponential backoff (0.0 to 1.0). The amount
	// grows linearly with the attempt number:
	//   jitter_amount = backoff * Jitter * attempt / MaxRetries
	Jitter float64

	// Fixed waits exactly InitialBackoff between attempts. MaxBackoff and
	// Jitter are ignored.
	Fixed bool
}

// ShouldRetryFunc reports whether an error should trigger another attempt.
// A nil ShouldRetryFunc retries every error.
type ShouldRetryFunc func(error) bool

// Do executes fn up to cfg.MaxRetries times.
//
// It returns nil as soon as fn succeeds, the error itself when shouldRetry
// rejects it, the context error when ctx is canceled while waiting, and
// otherwise an error wrapping the last failure once attempts are exhausted.
func Do(ctx context.Context, cfg Config, fn func() error, shouldRetry ShouldRetryFunc) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(calculateBackoff(cfg, attempt)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		if shouldRetry != nil && !shouldRetry(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// calculateBackoff computes the wait before the given attempt (1-based).
func calculateBackoff(cfg Config, attempt int) time.Duration {
	if cfg.Fixed {
		return cfg.InitialBackoff
	}

	multiplier := math.Pow(2, float64(attempt-1))
	backoff := time.Duration(multiplier * float64(cfg.InitialBackoff))

	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}

	if cfg.Jitter > 0 {
		jitterAmount := float64(backoff) * cfg.Jitter * float64(attempt) / float64(cfg.MaxRetries)
		backoff += time.Duration(jitterAmount)
	}

	return backoff
}
