package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"crawl-scheduler/pkg/utils"
)

// Policy configures bounded exponential backoff.
type Policy struct {
	MaxRetries int           // Retries after the initial attempt; 0 disables retrying
	BaseDelay  time.Duration // Delay before the first retry
	Multiplier float64       // Exponential factor; values < 1 are treated as the default
	MaxDelay   time.Duration // Cap on any single backoff delay; 0 = no cap
}

// DefaultPolicy returns the standard backoff settings: 3 retries, 2s base,
// base-2 exponential growth, 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		Multiplier: 2,
		MaxDelay:   30 * time.Second,
	}
}

// delayFor computes the backoff delay applied before retry attempt `attempt`
// (the attempt that just failed, 0-indexed): BaseDelay * Multiplier^attempt,
// capped at MaxDelay. No jitter is added; delays are deterministic.
func (p Policy) delayFor(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}
	backoff := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt))
	delay := time.Duration(backoff)
	if delay < 0 { // Overflow
		delay = p.MaxDelay
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do executes op with bounded retry and exponential backoff. It is a pure
// retry wrapper: it knows nothing about origins or cross-request state.
//
// Attempt 0 runs immediately. A failed attempt is classified with
// utils.IsRetryable; retryable failures back off and retry while attempts
// remain, fatal failures propagate immediately. The returned count is the
// number of attempts performed (at least 1). When retries are exhausted the
// final error is wrapped with utils.ErrRetryFailed.
func Do[T any](ctx context.Context, policy Policy, log *logrus.Entry, op func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		// Check cancellation before attempting or sleeping
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, attempt, fmt.Errorf("context cancelled (%v) during retry backoff after error: %w", ctx.Err(), lastErr)
			}
			return zero, attempt, fmt.Errorf("context cancelled before first attempt: %w", ctx.Err())
		default:
		}

		// Backoff applies only before retry attempts, not the first
		if attempt > 0 {
			delay := policy.delayFor(attempt - 1)
			log.WithFields(logrus.Fields{"attempt": attempt, "max_retries": policy.MaxRetries, "delay": delay}).Warn("Retrying operation...")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, attempt, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, attempt + 1, nil
		}
		lastErr = err

		if !utils.IsRetryable(err) {
			// Fatal: propagate immediately without consuming remaining retries
			log.WithField("attempt", attempt).Debugf("Non-retryable error: %v", err)
			return zero, attempt + 1, err
		}
		log.WithField("attempt", attempt).Warnf("Retryable error: %v", err)
	}

	log.Errorf("All %d attempts failed. Last error: %v", policy.MaxRetries+1, lastErr)
	return zero, policy.MaxRetries + 1, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}
