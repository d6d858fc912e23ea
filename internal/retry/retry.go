// Package retry bounds the attempts of a single processing step before the
// caller falls through to its dead-letter or broker-redelivery path.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"articlepipe/internal/config"
)

// Policy bounds attempts of one step.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// FromConfig converts the YAML policy.
func FromConfig(c config.RetryPolicy) Policy {
	return Policy{
		MaxAttempts:     c.MaxAttempts,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
	}
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Retrier runs an operation until it succeeds, fails permanently or runs out
// of attempts.
type Retrier struct {
	name        string
	policy      Policy
	isRetryable Classifier
	logger      *slog.Logger
}

// NewRetrier builds a retrier; a nil classifier retries every error.
func NewRetrier(name string, policy Policy, classifier Classifier, logger *slog.Logger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		name:        name,
		policy:      policy,
		isRetryable: classifier,
		logger:      logger,
	}
}

// Permanent wraps err so that no further attempt is made.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs operation and returns the number of attempts made together with
// the last error. Cancellation of ctx stops the loop immediately.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context) error) (int, error) {
	attempts := 0

	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := operation(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil || !r.retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("step attempt failed",
				"step", r.name,
				"attempt", attempts,
				"max_attempts", r.policy.MaxAttempts,
				"retry_in", next,
				"error", err)
		}),
	)
	return attempts, err
}

func (r *Retrier) retryable(err error) bool {
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return false
	}
	if r.isRetryable == nil {
		return true
	}
	return r.isRetryable(err)
}
