package utils

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
	BackoffType BackoffType
	// ShouldRetry decides whether a failed attempt is worth repeating.
	// Nil means every error is retryable.
	ShouldRetry func(error) bool
}

type BackoffType int

const (
	Linear BackoffType = iota
	Exponential
	ExponentialJitter
	Fixed
)

// RetryAfterHinter is implemented by errors that carry an upstream
// Retry-After duration. The hinted delay overrides the computed backoff for
// the next attempt.
type RetryAfterHinter interface {
	RetryAfterHint() time.Duration
}

func CreateDefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
		BackoffType: ExponentialJitter,
	}
}

func CreateRetry(ctx context.Context, config *RetryConfig, operation func() error) error {
	var lastErr error
	attempt := 0

	for attempt < config.MaxAttempts {
		if attempt > 0 {
			delay := calculateDelay(config, attempt)
			if hinted := retryAfterOf(lastErr); hinted > 0 {
				delay = hinted
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if config.ShouldRetry != nil && !config.ShouldRetry(err) {
			return err
		}

		attempt++
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

func CreateRetryWithResult(ctx context.Context, config *RetryConfig, operation func() (interface{}, error)) (interface{}, error) {
	var result interface{}
	var lastErr error
	attempt := 0

	for attempt < config.MaxAttempts {
		if attempt > 0 {
			delay := calculateDelay(config, attempt)
			if hinted := retryAfterOf(lastErr); hinted > 0 {
				delay = hinted
			}

			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if config.ShouldRetry != nil && !config.ShouldRetry(err) {
			return result, err
		}

		attempt++
	}

	return result, fmt.Errorf("operation failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

func calculateDelay(config *RetryConfig, attempt int) time.Duration {
	var delay time.Duration

	switch config.BackoffType {
	case Linear:
		delay = config.BaseDelay * time.Duration(attempt)
	case Exponential:
		delay = time.Duration(float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt-1)))
	case ExponentialJitter:
		baseDelay := time.Duration(float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt-1)))
		if config.Jitter {
			jitter := time.Duration(rand.Float64() * float64(baseDelay) * 0.1)
			delay = baseDelay + jitter
		} else {
			delay = baseDelay
		}
	case Fixed:
		delay = config.BaseDelay
	default:
		delay = config.BaseDelay
	}

	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	return delay
}

func retryAfterOf(err error) time.Duration {
	var hinter RetryAfterHinter
	if errors.As(err, &hinter) {
		return hinter.RetryAfterHint()
	}
	return 0
}
