// Package retry provides a generic retry executor with exponential backoff,
// shared by every component that talks to an upstream chain RPC or the
// database.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the backoff schedule for Run.
type Config struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultConfig mirrors the retry schedule used across this service: up to
// 5 attempts, starting at 500ms and doubling up to a 30s ceiling.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        5,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Run executes op, retrying on retryable errors with exponential backoff.
// It gives up immediately on non-retryable errors, and after cfg.MaxRetries
// attempts regardless of classification.
func Run[T any](ctx context.Context, cfg Config, logger zerolog.Logger, opName string, op func() (T, error)) (T, error) {
	delay := cfg.InitialDelay
	var attempt int
	for {
		attempt++
		val, err := op()
		if err == nil {
			if attempt > 1 {
				logger.Info().Str("op", opName).Int("attempt", attempt).Msg("retry success")
			}
			return val, nil
		}

		retryable := isRetryableError(err.Error())
		if attempt >= cfg.MaxRetries || !retryable {
			logger.Warn().Str("op", opName).Int("attempt", attempt).Bool("retryable", retryable).Err(err).Msg("retry failed")
			var zero T
			return zero, fmt.Errorf("%s: %w", opName, err)
		}

		logger.Warn().Str("op", opName).Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("retrying")

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}

var retryableSubstrings = []string{
	"500", "502", "503", "504", "429",
	"rate limit", "too many requests", "request timed out",
	"timeout", "temporary", "retry", "internal error",
	"connection refused", "connection reset", "broken pipe", "network",
}

func isRetryableError(msg string) bool {
	msg = strings.ToLower(msg)
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
