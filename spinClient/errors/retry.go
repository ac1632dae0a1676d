package errors

import (
	"context"
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// RetryConfig bounds a retried endpoint call. Delays grow by Multiplier from InitialDelay
// up to MaxDelay.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RetryableErrors []ErrorCode

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// DefaultRetryConfig suits dialing chain and relay endpoints.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		Multiplier:      2.0,
		RetryableErrors: []ErrorCode{ErrCodeNetwork},
	}
}

// RetryFunc is a function that can be retried
type RetryFunc func() error

// RetryWithConfig calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned as a SpinError carrying the attempt count.
func RetryWithConfig(ctx context.Context, fn RetryFunc, config *RetryConfig) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr, config.RetryableErrors) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		wait := config.backoff(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, lastErr, wait)
		}
		timer := clk.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return WrapSpinError(lastErr, ErrCodeNetwork, "", "maximum retry attempts exceeded").
		WithContext("attempts", config.MaxAttempts)
}

// backoff is the wait after the given 1-based attempt.
func (c *RetryConfig) backoff(attempt int) time.Duration {
	multiplier := c.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	wait := time.Duration(float64(c.InitialDelay) * math.Pow(multiplier, float64(attempt-1)))
	if c.MaxDelay > 0 && wait > c.MaxDelay {
		return c.MaxDelay
	}
	return wait
}

func isRetryableError(err error, retryableCodes []ErrorCode) bool {
	var spinErr *SpinError
	if As(err, &spinErr) {
		for _, code := range retryableCodes {
			if spinErr.Code == code {
				return true
			}
		}
		return spinErr.IsRetryable()
	}
	return IsRetryable(err)
}
