// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/notify"
	"github.com/nomadiqe/nomadiqe/internal/observability"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

var tracer = otel.Tracer("nomadiqe/flows")

// Deps are the components a Service composes. Rewards may be nil.
type Deps struct {
	Credentials *auth.CredentialStore
	Vault       *auth.TokenVault
	Links       *auth.LinkRegistry
	Sessions    *auth.SessionIssuer
	Onboarding  *onboarding.Service
	Mail        notify.Sender
	Rewards     Rewards
}

// Service runs the account flows.
type Service struct {
	credentials *auth.CredentialStore
	vault       *auth.TokenVault
	links       *auth.LinkRegistry
	sessions    *auth.SessionIssuer
	onboarding  *onboarding.Service
	mail        notify.Sender
	rewards     Rewards

	logger          *slog.Logger
	metrics         *observability.Metrics
	revealOAuthOnly bool
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics records flow outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRevealOAuthOnly makes ForgotPassword report that an account has no
// password. This discloses that the email is registered.
func WithRevealOAuthOnly(reveal bool) Option {
	return func(s *Service) { s.revealOAuthOnly = reveal }
}

// New creates a Service.
func New(deps Deps, opts ...Option) *Service {
	s := &Service{
		credentials: deps.Credentials,
		vault:       deps.Vault,
		links:       deps.Links,
		sessions:    deps.Sessions,
		onboarding:  deps.Onboarding,
		mail:        deps.Mail,
		rewards:     deps.Rewards,
		logger:      slog.Default(),
	}
	if s.rewards == nil {
		s.rewards = NoRewards{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// start opens a span for flow. The returned func ends it and records the
// outcome.
func (s *Service) start(ctx context.Context, flow string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := tracer.Start(ctx, "flows."+flow, trace.WithAttributes(attrs...))
	began := time.Now()
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("error.kind", errutil.KindOf(err).String()))
		}
		span.End()
		s.metrics.RecordFlow(flow, err, time.Since(began))
	}
}

// swallow logs a failed side effect that must not fail the flow.
func (s *Service) swallow(ctx context.Context, effect string, accountID ulid.ULID, err error) {
	logger := s.logger.With("effect", effect)
	if accountID != (ulid.ULID{}) {
		logger = logger.With("account_id", accountID.String())
	}
	errutil.LogWarn(logger, "side effect failed", err)
	observability.RecordSideEffectFailure(effect)
	trace.SpanFromContext(ctx).AddEvent("side_effect_failed", trace.WithAttributes(
		attribute.String("effect", effect),
	))
}

// send mails an issued token. Delivery failures leave the token valid.
func (s *Service) send(ctx context.Context, accountID ulid.ULID, kind notify.Kind, issued *auth.IssuedToken) {
	err := s.mail.Send(ctx, issued.Email, kind, notify.Data{Secret: issued.Secret, ExpiresAt: issued.ExpiresAt})
	if err != nil {
		s.swallow(ctx, "mail:"+string(kind), accountID, err)
	}
}

func (s *Service) award(ctx context.Context, accountID ulid.ULID, reason string, points int) {
	awarded, err := s.rewards.Award(ctx, accountID, reason, points)
	if err != nil {
		s.swallow(ctx, "rewards:"+reason, accountID, err)
		return
	}
	if awarded {
		s.logger.DebugContext(ctx, "points awarded",
			"account_id", accountID.String(), "reason", reason, "points", points)
	}
}

func (s *Service) mint(ctx context.Context, accountID ulid.ULID) (*auth.Session, error) {
	session, err := s.sessions.Mint(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSession("minted")
	return session, nil
}

func accountAttr(id ulid.ULID) attribute.KeyValue {
	return attribute.String("account.id", id.String())
}
