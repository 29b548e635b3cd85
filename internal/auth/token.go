// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Purpose scopes a verification token to one flow.
type Purpose string

// Token purposes.
const (
	PurposeEmailVerification Purpose = "email-verification"
	PurposePasswordReset     Purpose = "password-reset"
	PurposeAddPassword       Purpose = "add-password"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeEmailVerification || p == PurposePasswordReset || p == PurposeAddPassword
}

// Identifier returns the storage key for purpose and email,
// "<purpose>:<normalized-email>".
func Identifier(purpose Purpose, email string) string {
	return string(purpose) + ":" + NormalizeEmail(email)
}

// VerificationToken is a stored single-use secret. Only the SHA-256 of the
// secret is kept.
type VerificationToken struct {
	Identifier string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// NewVerificationToken creates a token record for secret.
func NewVerificationToken(purpose Purpose, email, secret string, expiresAt time.Time) (*VerificationToken, error) {
	if !purpose.Valid() {
		return nil, errutil.WithKind(errutil.KindValidation,
			oops.Code("TOKEN_PURPOSE_INVALID").With("purpose", purpose).Errorf("unknown token purpose %q", purpose))
	}
	if secret == "" {
		return nil, errutil.WithKind(errutil.KindValidation,
			oops.Code("TOKEN_SECRET_EMPTY").Errorf("token secret cannot be empty"))
	}
	return &VerificationToken{
		Identifier: Identifier(purpose, email),
		TokenHash:  HashToken(secret),
		ExpiresAt:  expiresAt.UTC(),
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// IsExpiredAt returns true if the token expired before now.
func (t *VerificationToken) IsExpiredAt(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// HashToken computes the SHA-256 hex digest stored for a secret.
func HashToken(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// VerificationTokenRepository manages verification token persistence.
type VerificationTokenRepository interface {
	// Replace deletes every token with the same identifier and stores token,
	// atomically with respect to other Replace calls for that identifier.
	Replace(ctx context.Context, token *VerificationToken) error

	// Consume deletes the token matching identifier and tokenHash and returns
	// it. Exactly one of several concurrent callers can succeed; the others
	// get ErrNotFound.
	Consume(ctx context.Context, identifier, tokenHash string) (*VerificationToken, error)

	// DeleteByIdentifier removes every token with the identifier.
	DeleteByIdentifier(ctx context.Context, identifier string) error

	// DeleteExpired removes tokens that expired before the given time.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// TokenPolicy generates secrets for a purpose.
type TokenPolicy interface {
	// Generate returns a new random secret.
	Generate() (string, error)

	// TTL is the default lifetime of issued secrets.
	TTL() time.Duration
}

// SecretPolicy issues hex-encoded random secrets.
type SecretPolicy struct {
	Bytes    int
	Lifetime time.Duration
}

// Generate returns Bytes random bytes, hex encoded.
func (p SecretPolicy) Generate() (string, error) {
	n := p.Bytes
	if n <= 0 {
		n = 32
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// TTL returns the policy lifetime.
func (p SecretPolicy) TTL() time.Duration { return p.Lifetime }

// CodePolicy issues short numeric codes meant to be typed by a person.
// The low entropy is offset by single use and a short lifetime.
type CodePolicy struct {
	Digits   int
	Lifetime time.Duration
}

// Generate returns a uniformly random code with exactly Digits digits.
func (p CodePolicy) Generate() (string, error) {
	digits := p.Digits
	if digits <= 0 {
		digits = 6
	}
	lo := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits-1)), nil)
	span := new(big.Int).Mul(lo, big.NewInt(9))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
	}
	return n.Add(n, lo).String(), nil
}

// TTL returns the policy lifetime.
func (p CodePolicy) TTL() time.Duration { return p.Lifetime }

// DefaultPolicies returns the policy for each purpose: 6-digit codes valid
// for 10 minutes for email verification, 256-bit secrets for the rest.
func DefaultPolicies() map[Purpose]TokenPolicy {
	return map[Purpose]TokenPolicy{
		PurposeEmailVerification: CodePolicy{Digits: 6, Lifetime: 10 * time.Minute},
		PurposePasswordReset:     SecretPolicy{Bytes: 32, Lifetime: time.Hour},
		PurposeAddPassword:       SecretPolicy{Bytes: 32, Lifetime: 24 * time.Hour},
	}
}
