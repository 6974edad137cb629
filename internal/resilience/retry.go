package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff with jitter.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, fraction of delay randomized
}

// DefaultRetryConfig returns the standard "3 attempts in total, exponential
// with jitter" default. It is exposed as a value, not a package constant, so
// tests can override attempt counts and delays without a global.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Do executes fn with exponential backoff, honoring ctx cancellation
// between attempts. It returns the last error if every attempt fails.
// An *ErrOpen is terminal: a breaker rejecting the call means the
// downstream is known-bad right now, so retrying on the same schedule
// would just burn attempts waiting out a cooldown the breaker already
// tracks. Do returns it immediately instead.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var openErr *ErrOpen
		if errors.As(err, &openErr) {
			return err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jittered(delay, cfg.Jitter)):
			}
			delay = nextDelay(delay, cfg)
		}
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*2*delta-delta)
}
