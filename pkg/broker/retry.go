package broker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// RetryPolicy bounds retries for idempotent reads (order book, funds).
// Order-mutating calls must never go through a policy: the venue offers no
// request idempotency key.
type RetryPolicy struct {
	MaxAttempts uint64
	Interval    time.Duration
	Retryable   func(error) bool
}

// ReadPolicy is the default policy for idempotent venue reads.
func ReadPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Interval:    time.Second,
		Retryable:   IsTransport,
	}
}

// Do runs op, retrying with fixed backoff while the error is retryable.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 1
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Interval), p.MaxAttempts-1),
		ctx,
	)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
