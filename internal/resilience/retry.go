package resilience

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cloudhand/cloudhand/internal/logger"
)

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns sensible defaults
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// SSHConnectRetryConfig returns the fixed-interval policy used while waiting
// for a freshly provisioned host to accept SSH connections: 10 attempts,
// 5 seconds apart.
func SSHConnectRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  10,
		InitialDelay: 5 * time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   1.0,
	}
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// Retry executes fn until it succeeds, the attempts are exhausted, or the
// context is cancelled. The last error is wrapped with the attempt count.
func Retry(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	log := logger.New("retry")
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := fn(ctx); err == nil {
			if attempt > 1 {
				log.Info("operation succeeded after retry", logger.Int("attempt", attempt))
			}
			return nil
		} else {
			lastErr = err
		}

		if attempt >= config.MaxAttempts {
			break
		}

		delay := calculateDelay(attempt, config)
		log.Debug("retrying operation",
			logger.Int("attempt", attempt),
			logger.Duration("next_delay", delay),
			logger.String("error", lastErr.Error()),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

func calculateDelay(attempt int, config *RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if max := float64(config.MaxDelay); delay > max {
		delay = max
	}
	return time.Duration(delay)
}
