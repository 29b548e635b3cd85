// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Token validation failures. Both are reported to users as one generic
// "invalid or expired" message.
var (
	ErrTokenNotFound = errutil.WithKind(errutil.KindNotFound, errors.New("token not found"))
	ErrTokenExpired  = errutil.WithKind(errutil.KindExpired, errors.New("token expired"))
)

// IssuedToken is a freshly issued secret. Secret is the only copy of the
// plaintext; it goes to the user and is never stored.
type IssuedToken struct {
	Purpose   Purpose
	Email     string
	Secret    string
	ExpiresAt time.Time
}

// TokenVault issues and validates purpose-scoped single-use secrets.
type TokenVault struct {
	tokens   VerificationTokenRepository
	policies map[Purpose]TokenPolicy
	now      func() time.Time
}

// VaultOption configures a TokenVault.
type VaultOption func(*TokenVault)

// WithVaultClock overrides time.Now.
func WithVaultClock(now func() time.Time) VaultOption {
	return func(v *TokenVault) { v.now = now }
}

// WithPolicy replaces the policy for purpose.
func WithPolicy(purpose Purpose, policy TokenPolicy) VaultOption {
	return func(v *TokenVault) { v.policies[purpose] = policy }
}

// NewTokenVault creates a new TokenVault using DefaultPolicies.
func NewTokenVault(tokens VerificationTokenRepository, opts ...VaultOption) *TokenVault {
	v := &TokenVault{
		tokens:   tokens,
		policies: DefaultPolicies(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *TokenVault) policy(purpose Purpose) (TokenPolicy, error) {
	p, ok := v.policies[purpose]
	if !ok {
		return nil, errutil.WithKind(errutil.KindValidation,
			oops.Code("TOKEN_PURPOSE_INVALID").With("purpose", purpose).Errorf("unknown token purpose %q", purpose))
	}
	return p, nil
}

// Issue creates a secret for purpose and email, invalidating any earlier
// one for the same pair. A ttl <= 0 uses the purpose's default lifetime.
func (v *TokenVault) Issue(ctx context.Context, purpose Purpose, email string, ttl time.Duration) (*IssuedToken, error) {
	policy, err := v.policy(purpose)
	if err != nil {
		return nil, err
	}
	normalized, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = policy.TTL()
	}

	secret, err := policy.Generate()
	if err != nil {
		return nil, err
	}
	expiresAt := v.now().Add(ttl).UTC()
	token, err := NewVerificationToken(purpose, normalized, secret, expiresAt)
	if err != nil {
		return nil, err
	}

	if err := v.tokens.Replace(ctx, token); err != nil {
		return nil, oops.Code("TOKEN_ISSUE_FAILED").
			With("purpose", purpose).
			With("identifier", token.Identifier).
			Wrap(err)
	}

	return &IssuedToken{
		Purpose:   purpose,
		Email:     normalized,
		Secret:    secret,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate consumes the secret for purpose and email. It succeeds at most
// once per issued secret. An expired secret is removed and reported as
// ErrTokenExpired; an unknown or already used one as ErrTokenNotFound.
func (v *TokenVault) Validate(ctx context.Context, purpose Purpose, email, secret string) error {
	if _, err := v.policy(purpose); err != nil {
		return err
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return errutil.WithKind(errutil.KindValidation,
			oops.Code("TOKEN_REQUIRED").With("purpose", purpose).Errorf("token is required"))
	}

	identifier := Identifier(purpose, email)
	token, err := v.tokens.Consume(ctx, identifier, HashToken(secret))
	if errors.Is(err, ErrNotFound) {
		return oops.Code("TOKEN_NOT_FOUND").
			With("purpose", purpose).
			With("identifier", identifier).
			Wrap(ErrTokenNotFound)
	}
	if err != nil {
		return oops.Code("TOKEN_VALIDATE_FAILED").
			With("purpose", purpose).
			With("identifier", identifier).
			Wrap(err)
	}

	if token.IsExpiredAt(v.now()) {
		return oops.Code("TOKEN_EXPIRED").
			With("purpose", purpose).
			With("identifier", identifier).
			With("expired_at", token.ExpiresAt).
			Wrap(ErrTokenExpired)
	}
	return nil
}

// Invalidate removes every outstanding secret for purpose and email.
func (v *TokenVault) Invalidate(ctx context.Context, purpose Purpose, email string) error {
	identifier := Identifier(purpose, email)
	if err := v.tokens.DeleteByIdentifier(ctx, identifier); err != nil {
		return oops.Code("TOKEN_INVALIDATE_FAILED").With("identifier", identifier).Wrap(err)
	}
	return nil
}

// PurgeExpired deletes every expired token and returns how many were removed.
func (v *TokenVault) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := v.tokens.DeleteExpired(ctx, v.now())
	if err != nil {
		return 0, oops.Code("TOKEN_PURGE_FAILED").Wrap(err)
	}
	return n, nil
}

// Decoy does the CPU work of issuing a secret for purpose without storing
// anything. Anti-enumeration branches call it when there is no account.
func (v *TokenVault) Decoy(purpose Purpose) {
	policy, err := v.policy(purpose)
	if err != nil {
		return
	}
	if secret, err := policy.Generate(); err == nil {
		_ = HashToken(secret)
	}
}
