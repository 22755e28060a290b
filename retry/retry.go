/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package retry contains caller-side retry helpers built on top of github.com/cenkalti/backoff.
// Dispatchers never retry by themselves, these helpers are for callers that want to.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable tells whether an error is temporary and the operation may be retried.
type IsRetryable func(error) bool

// RetryableFunc does some work that may be retried.
type RetryableFunc func(ctx context.Context) error

// Policy creates a backoff strategy for a single retry sequence.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// PolicyFunc is an adapter to allow the use of ordinary functions as Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// DoWithRetry calls fn until it succeeds, returns a non-retryable error, the policy gives up or ctx is done.
// A nil isRetryable treats every error as retryable. A nil notify disables notifications about retries.
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	bctx := backoff.WithContext(p.NewBackOff(), ctx)
	return backoff.RetryNotify(func() error {
		err := fn(ctx)
		if err != nil && isRetryable != nil && !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bctx, notify)
}

// ExponentialBackoffPolicy retries with delays growing by the backoff library's default multiplier (1.5).
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      int
}

// NewExponentialBackoffPolicy returns an exponential policy. maxRetries <= 0 means no limit on attempts.
func NewExponentialBackoffPolicy(initialInterval time.Duration, maxRetries int) ExponentialBackoffPolicy {
	return ExponentialBackoffPolicy{InitialInterval: initialInterval, MaxRetries: maxRetries}
}

// NewBackOff implements Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	return withMaxRetries(eb, p.MaxRetries)
}

// ConstantBackoffPolicy retries with the same delay between attempts.
type ConstantBackoffPolicy struct {
	Interval   time.Duration
	MaxRetries int
}

// NewConstantBackoffPolicy returns a constant policy. maxRetries <= 0 means no limit on attempts.
func NewConstantBackoffPolicy(interval time.Duration, maxRetries int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{Interval: interval, MaxRetries: maxRetries}
}

// NewBackOff implements Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	return withMaxRetries(backoff.NewConstantBackOff(p.Interval), p.MaxRetries)
}

func withMaxRetries(b backoff.BackOff, maxRetries int) backoff.BackOff {
	if maxRetries > 0 {
		b = backoff.WithMaxRetries(b, uint64(maxRetries))
	}
	b.Reset()
	return b
}
