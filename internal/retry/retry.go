// Package retry provides the bounded exponential-backoff policy shared
// by the embedding and chat provider clients. Both clients retry with
// the same parameters, so the policy lives here once instead of being
// duplicated per client.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded, jittered exponential backoff.
// The zero value is not usable; start from [DefaultPolicy].
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the initial backoff interval.
	BaseDelay time.Duration
	// MaxDelay caps the backoff interval.
	MaxDelay time.Duration
	// Retryable decides whether an error is transient. A nil predicate
	// retries every error. Non-transient errors abort immediately.
	Retryable func(error) bool
}

// DefaultPolicy returns the provider-call policy: 3 attempts, 500ms
// base, 5s cap, with the backoff library's default jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// Do runs op under the policy, sleeping between attempts. It returns
// nil on the first success, the last error once attempts are exhausted,
// the first non-transient error immediately, or ctx.Err() when the
// context is cancelled mid-backoff.
func (p Policy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	wrapped := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, wrapped)
}

// Do runs op under policy and returns its result. It is the generic
// companion of [Policy.Do] for operations that produce a value.
func Do[T any](ctx context.Context, policy Policy, op func() (T, error)) (T, error) {
	var result T
	err := policy.Do(ctx, func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}
