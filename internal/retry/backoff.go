// Package retry implements exponential backoff for transient API failures.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewpilot/pkg/models"
)

// Config configures retry behavior with exponential backoff.
type Config struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap on any single delay
	Multiplier  float64
	Jitter      bool // add up to 10% random jitter
}

// DefaultConfig returns the retry settings used for read-only API calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Do runs operation, retrying transient failures with exponential backoff.
// Permanent errors are returned immediately. The last error is returned
// when attempts are exhausted or the context is cancelled.
func Do(ctx context.Context, cfg Config, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := delayFor(cfg, attempt)
		log.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Int("max_attempts", cfg.MaxAttempts).
			Dur("delay", delay).
			Msg("transient failure, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// IsTransient reports whether err is worth retrying. Host outages and
// rate limiting are transient; rejected credentials never are.
func IsTransient(err error) bool {
	return errors.Is(err, models.ErrHostUnavailable) || errors.Is(err, models.ErrRateLimited)
}

func delayFor(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}

	return time.Duration(delay)
}
