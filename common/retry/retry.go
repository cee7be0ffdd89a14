// Package retry retries transient failures of outgoing chat API calls with
// exponential back-off.
//
// Usage:
//
//	msg, err := retry.Value(ctx, retry.DefaultConfig, func() (*Message, error) {
//	    return client.Send(ctx, content)
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts (including the first).
	// Zero or negative values are treated as 1 (no retries).
	MaxAttempts int
	// InitialDelay is the wait before the second attempt. Subsequent delays
	// are doubled up to MaxDelay.
	InitialDelay time.Duration
	// MaxDelay caps the per-attempt wait.
	MaxDelay time.Duration
}

// DefaultConfig suits interactive updates: a user is waiting on the result,
// so the total wait stays in the low seconds.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     2 * time.Second,
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that Do returns it immediately. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn up to cfg.MaxAttempts times. It stops early when ctx is done,
// when fn succeeds, or when fn returns a Permanent error, whose wrapped
// cause is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	_, err := Value(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Value is Do for functions that produce a result.
func Value[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}

	var zero T
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, errors.Join(lastErr, err)
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		var p *permanentError
		if errors.As(err, &p) {
			return zero, p.err
		}
		lastErr = err

		if attempt == cfg.MaxAttempts {
			break
		}
		slog.Debug("retry: attempt failed, retrying",
			"attempt", attempt, "max", cfg.MaxAttempts,
			"err", err, "delay", delay)

		select {
		case <-ctx.Done():
			return zero, errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}
