// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// DefaultSendTimeout bounds one background delivery.
const DefaultSendTimeout = 30 * time.Second

// Async hands deliveries to background goroutines so request latency does
// not depend on the mail relay. Send never fails; delivery errors are
// logged and reported to the failure hook.
type Async struct {
	next      Sender
	logger    *slog.Logger
	timeout   time.Duration
	onFailure func(kind Kind)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// AsyncOption configures an Async dispatcher.
type AsyncOption func(*Async)

// WithAsyncLogger sets the logger for delivery failures.
func WithAsyncLogger(logger *slog.Logger) AsyncOption {
	return func(a *Async) { a.logger = logger }
}

// WithSendTimeout bounds each delivery.
func WithSendTimeout(d time.Duration) AsyncOption {
	return func(a *Async) { a.timeout = d }
}

// WithFailureHook is called once per failed delivery.
func WithFailureHook(fn func(kind Kind)) AsyncOption {
	return func(a *Async) { a.onFailure = fn }
}

// NewAsync wraps next.
func NewAsync(next Sender, opts ...AsyncOption) *Async {
	a := &Async{next: next, logger: slog.Default(), timeout: DefaultSendTimeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Send queues the delivery. The request context's values are kept but its
// cancellation is not, so a finished request does not abort the mail.
func (a *Async) Send(ctx context.Context, recipient string, kind Kind, data Data) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return oops.Code("MAIL_DISPATCHER_CLOSED").With("kind", kind).Errorf("mail dispatcher is closed")
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.next.Send(sendCtx, recipient, kind, data); err != nil {
			errutil.LogError(a.logger, "mail delivery failed", err)
			if a.onFailure != nil {
				a.onFailure(kind)
			}
		}
	}()
	return nil
}

// Wait blocks until queued deliveries finish or ctx is done. Later Sends
// are rejected.
func (a *Async) Wait(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("MAIL_DRAIN_TIMEOUT").Wrap(ctx.Err())
	}
}
