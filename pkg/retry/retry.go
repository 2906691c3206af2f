// Package retry runs idempotent operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrMaxRetriesExceeded wraps the last error once the policy gives up
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy configures a Retrier
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// RetryableFunc decides whether an error is worth another attempt. Nil retries everything.
	RetryableFunc func(error) bool
}

// DefaultPolicy suits read calls to external APIs
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Retrier handles retry logic
type Retrier struct {
	policy Policy
	logger *zap.Logger
}

// NewRetrier creates a new retrier
func NewRetrier(policy Policy, logger *zap.Logger) *Retrier {
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = 200 * time.Millisecond
	}
	if policy.MaxInterval < policy.InitialInterval {
		policy.MaxInterval = policy.InitialInterval
	}
	return &Retrier{policy: policy, logger: logger}
}

func (r *Retrier) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.policy.InitialInterval
	exp.MaxInterval = r.policy.MaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, r.policy.MaxRetries), ctx)
}

// Do executes operation until it succeeds, fails permanently or the policy gives up
func (r *Retrier) Do(ctx context.Context, operation func() error) error {
	attempts := 0
	op := func() error {
		attempts++
		err := operation()
		if err == nil {
			return nil
		}
		if r.policy.RetryableFunc != nil && !r.policy.RetryableFunc(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Debug("Retrying operation",
			zap.Error(err),
			zap.Int("attempt", attempts),
			zap.Duration("backoff", wait))
	}

	err := backoff.RetryNotify(op, r.newBackOff(ctx), notify)
	if err == nil {
		if attempts > 1 {
			r.logger.Info("Operation succeeded after retries", zap.Int("attempts", attempts))
		}
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	if r.policy.RetryableFunc != nil && !r.policy.RetryableFunc(err) {
		return err
	}
	r.logger.Warn("Max retries exceeded", zap.Error(err), zap.Int("attempts", attempts))
	return errors.Join(ErrMaxRetriesExceeded, err)
}

// DoWithResult is Do for operations returning a value
func DoWithResult[T any](ctx context.Context, r *Retrier, operation func() (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func() error {
		v, err := operation()
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
