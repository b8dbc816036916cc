// Package retry runs an I/O call under an explicit exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v5"
)

// ErrExhausted marks an error returned after every allowed attempt failed transiently.
var ErrExhausted = errors.New("retries exhausted")

// Policy bounds how often and how fast a call is retried.
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Always treats every error as transient.
func Always(error) bool { return true }

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 1 {
		b.Multiplier = p.Multiplier
	}
	return b
}

// Do calls fn until it succeeds, returns a non-transient error, the context ends,
// or MaxAttempts is reached. Exhaustion is reported as ErrExhausted wrapping the last error.
func Do[T any](ctx context.Context, p Policy, logger ectologger.Logger, operation string, transient Classifier, fn func() (T, error)) (T, error) {
	if transient == nil {
		transient = Always
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	attempt := uint(0)
	permanent := false
	op := func() (T, error) {
		attempt++
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !transient(err) {
			permanent = true
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	notify := func(err error, wait time.Duration) {
		logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"operation":    operation,
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"retry_in":     wait.String(),
		}).Warnf("%s failed, retrying", operation)
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(maxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return result, nil
	}
	if permanent || ctx.Err() != nil {
		return result, err
	}
	return result, fmt.Errorf("%s: %w after %d attempts: %w", operation, ErrExhausted, attempt, err)
}

// Run is Do for calls that return only an error.
func Run(ctx context.Context, p Policy, logger ectologger.Logger, operation string, transient Classifier, fn func() error) error {
	_, err := Do(ctx, p, logger, operation, transient, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
