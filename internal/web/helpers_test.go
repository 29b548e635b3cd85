// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/auth/memory"
	"github.com/nomadiqe/nomadiqe/internal/flows"
	"github.com/nomadiqe/nomadiqe/internal/notify"
	"github.com/nomadiqe/nomadiqe/internal/observability"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
	"github.com/nomadiqe/nomadiqe/internal/poll"
	"github.com/nomadiqe/nomadiqe/internal/web"
)

const adapterSecret = "adapter-secret-for-tests"

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (plainHasher) Verify(password, hash string) (bool, error) {
	return hash == "plain:"+password, nil
}

func (plainHasher) NeedsUpgrade(string) bool { return false }

type outbox struct {
	mu   sync.Mutex
	last notify.Data
}

func (o *outbox) Send(_ context.Context, _ string, _ notify.Kind, data notify.Data) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = data
	return nil
}

func (o *outbox) secret() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last.Secret
}

type server struct {
	t       *testing.T
	handler http.Handler
	outbox  *outbox
	metrics *observability.Metrics
}

func newServer(t *testing.T) *server {
	t.Helper()
	store := memory.New()
	fast := poll.Schedule(time.Millisecond)
	creds := auth.NewCredentialStore(store.Accounts(), plainHasher{})
	sessions, err := auth.NewSessionIssuer(creds, store.Progress(),
		[]byte(strings.Repeat("s", auth.MinSessionSecretLength)), auth.WithRefreshPolicy(fast))
	require.NoError(t, err)

	box := &outbox{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	quiet := slog.New(slog.DiscardHandler)
	svc := flows.New(flows.Deps{
		Credentials: creds,
		Vault:       auth.NewTokenVault(store.Tokens()),
		Links:       auth.NewLinkRegistry(store.Accounts(), store.Links(), auth.WithVisibilityPolicy(fast)),
		Sessions:    sessions,
		Onboarding:  onboarding.NewService(creds, store.Progress(), store.Profiles(), onboarding.WithLogger(quiet)),
		Mail:        box,
	}, flows.WithLogger(quiet), flows.WithMetrics(metrics))

	h := web.NewHandler(svc, web.Config{AdapterSecret: adapterSecret},
		web.WithLogger(quiet), web.WithMetrics(metrics))
	return &server{t: t, handler: h.Routes(), outbox: box, metrics: metrics}
}

type reqOpt func(*http.Request)

func withCookie(c *http.Cookie) reqOpt {
	return func(r *http.Request) { r.AddCookie(c) }
}

func withBearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func (s *server) do(method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// signedIn signs up and signs in, returning the session cookie.
func (s *server) signedIn(email string) *http.Cookie {
	s.t.Helper()
	creds := map[string]string{"email": email, "password": "secret1"}
	require.Equal(s.t, http.StatusCreated, s.do(http.MethodPost, "/api/auth/signup", creds).Code)
	rec := s.do(http.MethodPost, "/api/auth/signin", creds)
	require.Equal(s.t, http.StatusOK, rec.Code)
	return sessionCookie(s.t, rec)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == web.DefaultCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", web.DefaultCookieName)
	return nil
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type sessionBody struct {
	Token   string `json:"token"`
	Account struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"account"`
	Onboarding struct {
		Status string `json:"status"`
		Step   string `json:"step"`
	} `json:"onboarding"`
	IsNewAccount bool `json:"isNewAccount"`
}
