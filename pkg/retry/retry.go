// Package retry retries transient failures with jittered exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxRetries       int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	Multiplier       float64
	JitterFactor     float64 // 0.0-1.0, +/- fraction of the delay
	MaxSameErrorType int     // After N consecutive same-kind errors, give up early
}

// DefaultConfig suits database start-up: 5 retries from 200ms, capped at 5s.
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:       5,
		InitialDelay:     200 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		JitterFactor:     0.1,
		MaxSameErrorType: 5,
	}
}

func applyJitter(delay time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return delay
	}
	jitter := float64(delay) * jitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(float64(delay) + jitter)
}

// DoIfRetryable runs fn until it succeeds, returns a permanent error, or the
// retry budget is spent. Waits between attempts honor ctx.
func DoIfRetryable[T any](ctx context.Context, cfg *Config, fn func(ctx context.Context) (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var zero T
	var lastErr error
	var lastKind string
	sameKind := 0
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}

		kind := errorKind(err)
		if kind == lastKind {
			sameKind++
			if cfg.MaxSameErrorType > 0 && sameKind >= cfg.MaxSameErrorType {
				return zero, fmt.Errorf("repeated error (%d times, kind=%s): %w", sameKind, kind, err)
			}
		} else {
			sameKind = 1
			lastKind = kind
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(applyJitter(delay, cfg.JitterFactor)):
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	return zero, lastErr
}

// IsRetryable reports whether err looks transient. Errors that declare their
// own retryability (IsRetryable() bool) are trusted; Postgres errors are
// judged by SQLSTATE; everything else by message.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var declared interface{ IsRetryable() bool }
	if errors.As(err, &declared) {
		return declared.IsRetryable()
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableSQLState(pgErr.Code)
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"timed out",
	"temporary failure",
	"network is unreachable",
	"the database system is starting up",
	"too many connections",
	"deadlock",
}

// retryableSQLState covers connection exceptions (class 08), admin shutdown
// and start-up states, resource exhaustion and serialization failures.
func retryableSQLState(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"):
		return true
	case code == "57P01", code == "57P03":
		return true
	case code == "53300", code == "53400":
		return true
	case code == "40001", code == "40P01":
		return true
	}
	return false
}

func errorKind(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "sqlstate_" + pgErr.Code
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"):
		return "connection"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return "timeout"
	case strings.Contains(msg, "no such host"):
		return "dns"
	}
	return "unknown"
}
