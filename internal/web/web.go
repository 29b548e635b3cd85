// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/nomadiqe/nomadiqe/internal/flows"
	"github.com/nomadiqe/nomadiqe/internal/observability"
)

// Defaults for Config fields left zero.
const (
	DefaultCookieName     = "nomadiqe_session"
	DefaultMaxBodyBytes   = 64 << 10
	DefaultRequestTimeout = 15 * time.Second
	AdapterSecretHeader   = "X-Adapter-Secret" //nolint:gosec // G101: header name, not a credential.
)

// Config holds the HTTP surface settings.
type Config struct {
	CookieName   string
	CookieSecure bool
	// AdapterSecret authenticates the identity-linking adapter on the
	// internal routes. Empty disables them.
	AdapterSecret  string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Handler serves the account API.
type Handler struct {
	flows   *flows.Service
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMetrics records request outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler creates a Handler.
func NewHandler(svc *flows.Service, cfg Config, opts ...Option) *Handler {
	h := &Handler{
		flows:  svc,
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the API mux wrapped in the request middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/signup", h.handleSignUp)
	mux.HandleFunc("POST /api/auth/signin", h.handleSignIn)
	mux.HandleFunc("POST /api/auth/signout", h.handleSignOut)
	mux.HandleFunc("POST /api/auth/password/forgot", h.handleForgotPassword)
	mux.HandleFunc("POST /api/auth/password/reset", h.handleResetPassword)
	mux.HandleFunc("POST /api/auth/password/request-add-password", h.handleRequestAddPassword)
	mux.HandleFunc("POST /api/auth/password/add-password-via-token", h.handleAddPasswordViaToken)
	mux.Handle("POST /api/auth/password/add-password", h.RequireSession(http.HandlerFunc(h.handleAddPassword)))
	mux.HandleFunc("POST /api/auth/verify-email/send-code", h.handleSendCode)
	mux.HandleFunc("POST /api/auth/verify-email/verify-code", h.handleVerifyCode)
	mux.HandleFunc("GET /api/auth/session", h.handleSession)
	mux.HandleFunc("GET /api/auth/providers", h.handleProviders)

	mux.Handle("POST /api/onboarding/role", h.RequireSession(http.HandlerFunc(h.handleSelectRole)))
	mux.Handle("POST /api/onboarding/steps/{step}", h.RequireSession(http.HandlerFunc(h.handleCompleteStep)))
	mux.Handle("GET /api/onboarding/progress", h.RequireSession(http.HandlerFunc(h.handleProgress)))

	mux.Handle("GET /api/me", h.RequireSession(h.RequireCompleted(http.HandlerFunc(h.handleMe))))

	if h.cfg.AdapterSecret != "" {
		mux.Handle("POST /internal/providers/callback", h.requireAdapter(http.HandlerFunc(h.handleProviderCallback)))
		mux.Handle("POST /internal/providers/session", h.requireAdapter(http.HandlerFunc(h.handleExternalSession)))
	}

	return h.instrument(mux)
}
