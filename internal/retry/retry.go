// Package retry runs transient-failure-prone operations with exponential
// backoff and jitter.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Config controls attempt count and backoff shape.
type Config struct {
	// Attempts is the total number of tries including the first. 1 means
	// no retries.
	Attempts int
	// Base is the delay before the first retry; it doubles per attempt.
	Base time.Duration
	// Cap bounds the computed delay before jitter.
	Cap time.Duration
	// Jitter widens each delay by a random fraction in [-Jitter, +Jitter].
	Jitter float64
	// Retryable overrides the default IsTransient check when set.
	Retryable func(err error) bool
}

// DefaultConfig suits outbound HTTP calls.
func DefaultConfig() Config {
	return Config{
		Attempts: 3,
		Base:     time.Second,
		Cap:      30 * time.Second,
		Jitter:   0.25,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Attempts <= 0 {
		c.Attempts = d.Attempts
	}
	if c.Base <= 0 {
		c.Base = d.Base
	}
	if c.Cap <= 0 {
		c.Cap = d.Cap
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Do runs fn until it succeeds, fails non-transiently, or attempts run out.
// Context cancellation stops retries immediately and returns the last error.
func Do(ctx context.Context, cfg Config, op string, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for operations returning a value.
func DoVal[T any](ctx context.Context, cfg Config, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := range cfg.Attempts {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == cfg.Attempts-1 {
			break
		}

		zap.L().Warn("retrying after transient failure",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		t := time.NewTimer(cfg.delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, lastErr
		case <-t.C:
		}
	}
	return zero, lastErr
}

func (c Config) delay(attempt int) time.Duration {
	d := float64(c.Base) * math.Pow(2, float64(attempt))
	if d > float64(c.Cap) {
		d = float64(c.Cap)
	}
	if c.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * c.Jitter
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Transient marks an error as safe to retry, optionally carrying the HTTP
// status that caused it.
type Transient struct {
	Err        error
	StatusCode int
}

func (e *Transient) Error() string { return e.Err.Error() }

func (e *Transient) Unwrap() error { return e.Err }

// Mark wraps err as transient.
func Mark(err error, statusCode int) *Transient {
	return &Transient{Err: err, StatusCode: statusCode}
}

// RetryableStatus reports whether an HTTP status indicates a condition worth
// retrying.
func RetryableStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// IsTransient reports whether err is marked Transient or looks like a
// network-level failure (timeouts, resets, DNS).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var tr *Transient
	if errors.As(err, &tr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped client errors often survive only as strings.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
