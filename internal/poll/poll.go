// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

// Package poll provides a bounded retry helper with an explicit attempt
// budget and backoff schedule. It never loops indefinitely: when the budget
// is spent the last observed value is returned with TimedOut set.
package poll

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy is a backoff schedule. The number of attempts is len(Delays)+1.
type Policy struct {
	Delays []time.Duration
}

// Schedule returns a policy that waits the given delays between attempts.
func Schedule(delays ...time.Duration) Policy {
	return Policy{Delays: append([]time.Duration(nil), delays...)}
}

// Exponential returns a policy of attempts tries whose delays double from base.
func Exponential(base time.Duration, attempts int) Policy {
	if attempts < 1 {
		attempts = 1
	}
	b := goretry.NewExponential(base)
	delays := make([]time.Duration, 0, attempts-1)
	for i := 0; i < attempts-1; i++ {
		d, stop := b.Next()
		if stop {
			break
		}
		delays = append(delays, d)
	}
	return Policy{Delays: delays}
}

// Attempts returns the total attempt budget.
func (p Policy) Attempts() int {
	return len(p.Delays) + 1
}

// Total returns the sum of all delays, the worst-case added latency.
func (p Policy) Total() time.Duration {
	var total time.Duration
	for _, d := range p.Delays {
		total += d
	}
	return total
}

func (p Policy) backoff() goretry.Backoff {
	i := 0
	return goretry.BackoffFunc(func() (time.Duration, bool) {
		if i >= len(p.Delays) {
			return 0, true
		}
		d := p.Delays[i]
		i++
		return d, false
	})
}

// Outcome is the typed result of Until: either the check succeeded, or the
// budget ran out and Value holds whatever the final attempt observed.
type Outcome[T any] struct {
	Value    T
	Attempts int
	TimedOut bool
}

// Ok reports whether the check succeeded within the budget.
func (o Outcome[T]) Ok() bool {
	return !o.TimedOut
}

var errNotDone = errors.New("poll: condition not met")

// Until calls fn until it reports done, returns an error, or the policy is
// exhausted. An error from fn stops polling immediately and is returned as is.
// Context cancellation during a backoff wait returns the context error.
func Until[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, bool, error)) (Outcome[T], error) {
	var out Outcome[T]
	err := goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		out.Attempts++
		v, done, err := fn(ctx)
		if err != nil {
			return err
		}
		out.Value = v
		if done {
			return nil
		}
		return goretry.RetryableError(errNotDone)
	})
	if errors.Is(err, errNotDone) {
		out.TimedOut = true
		return out, nil
	}
	if err != nil {
		return out, err
	}
	return out, nil
}
