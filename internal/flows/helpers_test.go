// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows_test

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/auth/memory"
	"github.com/nomadiqe/nomadiqe/internal/flows"
	"github.com/nomadiqe/nomadiqe/internal/notify"
	"github.com/nomadiqe/nomadiqe/internal/observability"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
	"github.com/nomadiqe/nomadiqe/internal/poll"
)

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (plainHasher) Verify(password, hash string) (bool, error) {
	return hash == "plain:"+password, nil
}

func (plainHasher) NeedsUpgrade(string) bool { return false }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mail struct {
	To   string
	Kind notify.Kind
	Data notify.Data
}

// outbox records every message and optionally fails delivery afterwards.
type outbox struct {
	mu   sync.Mutex
	sent []mail
	err  error
}

func (o *outbox) Send(_ context.Context, to string, kind notify.Kind, data notify.Data) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, mail{To: to, Kind: kind, Data: data})
	return o.err
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

func (o *outbox) last(t *testing.T) mail {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no mail sent")
	return o.sent[len(o.sent)-1]
}

type ledger struct {
	mu      sync.Mutex
	awarded map[string]int
	err     error
}

func (l *ledger) Award(_ context.Context, id ulid.ULID, reason string, points int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	key := id.String() + "/" + reason
	if _, ok := l.awarded[key]; ok {
		return false, nil
	}
	l.awarded[key] = points
	return true, nil
}

func (l *ledger) points(id ulid.ULID, reason string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.awarded[id.String()+"/"+reason]
}

type harness struct {
	svc      *flows.Service
	store    *memory.Store
	creds    *auth.CredentialStore
	sessions *auth.SessionIssuer
	outbox   *outbox
	ledger   *ledger
	metrics  *observability.Metrics
	clock    *clock
}

func newHarness(t *testing.T, opts ...flows.Option) *harness {
	t.Helper()
	h := &harness{
		store:   memory.New(),
		outbox:  &outbox{},
		ledger:  &ledger{awarded: map[string]int{}},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		clock:   &clock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)},
	}
	fast := poll.Schedule(time.Millisecond, time.Millisecond)

	h.creds = auth.NewCredentialStore(h.store.Accounts(), plainHasher{}, auth.WithCredentialClock(h.clock.Now))
	vault := auth.NewTokenVault(h.store.Tokens(), auth.WithVaultClock(h.clock.Now))
	links := auth.NewLinkRegistry(h.store.Accounts(), h.store.Links(), auth.WithVisibilityPolicy(fast))
	var err error
	h.sessions, err = auth.NewSessionIssuer(h.creds, h.store.Progress(),
		[]byte(strings.Repeat("s", auth.MinSessionSecretLength)),
		auth.WithSessionClock(h.clock.Now),
		auth.WithRefreshPolicy(fast))
	require.NoError(t, err)
	ob := onboarding.NewService(h.creds, h.store.Progress(), h.store.Profiles(),
		onboarding.WithClock(h.clock.Now),
		onboarding.WithLogger(slog.New(slog.DiscardHandler)))

	opts = append([]flows.Option{
		flows.WithLogger(slog.New(slog.DiscardHandler)),
		flows.WithMetrics(h.metrics),
	}, opts...)
	h.svc = flows.New(flows.Deps{
		Credentials: h.creds,
		Vault:       vault,
		Links:       links,
		Sessions:    h.sessions,
		Onboarding:  ob,
		Mail:        h.outbox,
		Rewards:     h.ledger,
	}, opts...)
	return h
}

func (h *harness) signUp(t *testing.T, email, password string) *flows.AccountView {
	t.Helper()
	view, err := h.svc.SignUp(context.Background(), flows.SignUpInput{Email: email, Password: password})
	require.NoError(t, err)
	return view
}

// providerAccount creates an account that has only a Google link.
func (h *harness) providerAccount(t *testing.T, email string) *flows.SignInResult {
	t.Helper()
	res, err := h.svc.ProviderSignIn(context.Background(), auth.ProviderGoogle, "g-"+email, email)
	require.NoError(t, err)
	return res
}
