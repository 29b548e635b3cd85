// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/onboarding"
	"github.com/nomadiqe/nomadiqe/internal/poll"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Session defaults.
const (
	DefaultSessionTTL      = 30 * 24 * time.Hour
	DefaultSessionIssuer   = "nomadiqe"
	DefaultSessionAudience = "nomadiqe-web"
	MinSessionSecretLength = 32
)

// ErrInvalidSession is returned for tokens that fail verification or whose
// account no longer exists.
var ErrInvalidSession = errutil.WithKind(errutil.KindUnauthorized, errors.New("invalid session"))

// Claims is the signed payload of a session token. The onboarding fields
// are a cache of the account record, which always wins.
type Claims struct {
	Email            string            `json:"email"`
	Role             onboarding.Role   `json:"role"`
	OnboardingStatus onboarding.Status `json:"onboarding_status"`
	OnboardingStep   onboarding.Step   `json:"onboarding_step,omitempty"`
	jwt.RegisteredClaims
}

// Snapshot returns the onboarding state embedded in the claims.
func (c *Claims) Snapshot() onboarding.Snapshot {
	return onboarding.Snapshot{Role: c.Role, Status: c.OnboardingStatus, Step: c.OnboardingStep}
}

// AccountID parses the subject claim.
func (c *Claims) AccountID() (ulid.ULID, error) {
	id, err := ulid.Parse(c.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("SESSION_INVALID").Wrap(ErrInvalidSession)
	}
	return id, nil
}

// Session is a signed token together with the values it carries.
type Session struct {
	Token     string
	AccountID ulid.ULID
	Email     string
	Snapshot  onboarding.Snapshot
	ExpiresAt time.Time
	// Drifted is set by Refresh when the presented token's onboarding
	// snapshot differed from the account record.
	Drifted bool
}

// SessionIssuer mints and refreshes session tokens from durable account
// state.
type SessionIssuer struct {
	credentials *CredentialStore
	progress    onboarding.ProgressRepository
	secret      []byte
	issuer      string
	audience    string
	ttl         time.Duration
	refreshPoll poll.Policy
	logger      *slog.Logger
	now         func() time.Time
}

// SessionOption configures a SessionIssuer.
type SessionOption func(*SessionIssuer)

// WithSessionTTL sets how long minted tokens stay valid.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionIssuer) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionClock overrides time.Now.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionIssuer) { s.now = now }
}

// WithSessionAudience sets the issuer and audience claims.
func WithSessionAudience(issuer, audience string) SessionOption {
	return func(s *SessionIssuer) {
		s.issuer = issuer
		s.audience = audience
	}
}

// WithRefreshPolicy sets the polling budget used by AwaitRefresh.
func WithRefreshPolicy(p poll.Policy) SessionOption {
	return func(s *SessionIssuer) { s.refreshPoll = p }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *SessionIssuer) { s.logger = logger }
}

// NewSessionIssuer creates a SessionIssuer that signs with HS256 using secret.
func NewSessionIssuer(credentials *CredentialStore, progress onboarding.ProgressRepository, secret []byte, opts ...SessionOption) (*SessionIssuer, error) {
	if len(secret) < MinSessionSecretLength {
		return nil, errutil.WithKind(errutil.KindValidation,
			oops.Code("SESSION_SECRET_TOO_SHORT").
				With("min_length", MinSessionSecretLength).
				Errorf("session secret must be at least %d bytes", MinSessionSecretLength))
	}
	s := &SessionIssuer{
		credentials: credentials,
		progress:    progress,
		secret:      secret,
		issuer:      DefaultSessionIssuer,
		audience:    DefaultSessionAudience,
		ttl:         DefaultSessionTTL,
		refreshPoll: poll.Exponential(50*time.Millisecond, 4),
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Mint issues a session for an account from its stored state.
//
// A provider-created account arrives with no onboarding step, PENDING and
// the default role. Its first mint initializes it to the default role's
// first step and creates its progress record.
func (s *SessionIssuer) Mint(ctx context.Context, accountID ulid.ULID) (*Session, error) {
	account, err := s.credentials.GetByID(ctx, accountID)
	if err != nil {
		return nil, oops.With("operation", "mint session").Wrap(err)
	}

	snap := account.Snapshot()
	switch {
	case isUninitialized(snap):
		snap, err = s.initialize(ctx, account)
		if err != nil {
			return nil, err
		}
	case snap.Step == "" && snap.Status != onboarding.StatusCompleted:
		snap.Step = s.fallbackStep(ctx, account)
	}

	return s.sign(account, snap)
}

func isUninitialized(snap onboarding.Snapshot) bool {
	return snap.Step == "" &&
		snap.Status == onboarding.StatusPending &&
		snap.Role == onboarding.DefaultRole
}

func (s *SessionIssuer) initialize(ctx context.Context, account *Account) (onboarding.Snapshot, error) {
	role := onboarding.DefaultRole
	status := onboarding.StatusPending
	step := onboarding.FirstStep(role)

	err := s.credentials.UpdateOnboarding(ctx, account.ID, onboarding.Update{Role: &role, Status: &status, Step: &step})
	if err != nil {
		return onboarding.Snapshot{}, oops.Code("SESSION_INIT_FAILED").With("account_id", account.ID.String()).Wrap(err)
	}

	if _, err := s.progress.CreateIfAbsent(ctx, onboarding.NewProgress(account.ID, role, s.now().UTC())); err != nil {
		// Progress is also created lazily on first use.
		errutil.LogWarn(s.logger.With("account_id", account.ID.String()), "seed onboarding progress failed", err)
	}

	s.logger.Debug("initialized provider-created account", "account_id", account.ID.String())
	return onboarding.Snapshot{Role: role, Status: status, Step: step}, nil
}

func (s *SessionIssuer) fallbackStep(ctx context.Context, account *Account) onboarding.Step {
	p, err := s.progress.Get(ctx, account.ID)
	if err == nil && p.CurrentStep != "" {
		return p.CurrentStep
	}
	if err != nil && !errors.Is(err, onboarding.ErrProgressNotFound) {
		errutil.LogWarn(s.logger.With("account_id", account.ID.String()), "read progress for session failed", err)
	}
	return onboarding.FirstStep(account.Role)
}

func (s *SessionIssuer) sign(account *Account, snap onboarding.Snapshot) (*Session, error) {
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	claims := Claims{
		Email:            account.Email,
		Role:             snap.Role,
		OnboardingStatus: snap.Status,
		OnboardingStep:   snap.Step,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        ulid.Make().String(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, oops.Code("SESSION_SIGN_FAILED").With("account_id", account.ID.String()).Wrap(err)
	}
	return &Session{
		Token:     token,
		AccountID: account.ID,
		Email:     account.Email,
		Snapshot:  snap,
		ExpiresAt: expires,
	}, nil
}

// Parse verifies a token's signature, issuer, audience and expiry.
func (s *SessionIssuer) Parse(token string) (*Claims, error) {
	if token == "" {
		return nil, oops.Code("SESSION_MISSING").Wrap(ErrInvalidSession)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID").With("reason", err.Error()).Wrap(ErrInvalidSession)
	}
	return claims, nil
}

// Refresh verifies token and mints a replacement from the account record.
// The result is always built from stored values; Drifted reports whether
// the presented token was stale. A deleted account is UNAUTHORIZED.
func (s *SessionIssuer) Refresh(ctx context.Context, token string) (*Session, error) {
	claims, err := s.Parse(token)
	if err != nil {
		return nil, err
	}
	id, err := claims.AccountID()
	if err != nil {
		return nil, err
	}

	session, err := s.Mint(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code("SESSION_ACCOUNT_GONE").With("account_id", id.String()).Wrap(ErrInvalidSession)
	}
	if err != nil {
		return nil, err
	}
	session.Drifted = claims.Snapshot() != session.Snapshot
	return session, nil
}

// AwaitRefresh refreshes token until done accepts the stored snapshot or
// the refresh policy runs out. On timeout the last refreshed session is
// returned with TimedOut set; callers serve it anyway.
func (s *SessionIssuer) AwaitRefresh(ctx context.Context, token string, done func(onboarding.Snapshot) bool) (poll.Outcome[*Session], error) {
	return poll.Until(ctx, s.refreshPoll, func(ctx context.Context) (*Session, bool, error) {
		session, err := s.Refresh(ctx, token)
		if err != nil {
			return nil, false, err
		}
		return session, done(session.Snapshot), nil
	})
}
