// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/onboarding"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Account is the durable identity record.
type Account struct {
	ID    ulid.ULID
	Email string
	// PasswordHash is empty for accounts without a local credential.
	PasswordHash     string
	Role             onboarding.Role
	OnboardingStatus onboarding.Status
	// OnboardingStep is empty once onboarding is COMPLETED. A provider-created
	// account also starts without a step until its first session mint.
	OnboardingStep  onboarding.Step
	EmailVerifiedAt *time.Time
	FailedAttempts  int
	LockedUntil     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewAccount creates an Account positioned at role's first onboarding step.
// An empty role selects onboarding.DefaultRole.
func NewAccount(email, passwordHash string, role onboarding.Role) (*Account, error) {
	normalized, err := ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	if role == "" {
		role = onboarding.DefaultRole
	}
	if !role.Valid() {
		return nil, errutil.WithKind(errutil.KindValidation,
			oops.Code("ROLE_INVALID").With("role", role).Errorf("unknown role %q", role))
	}

	now := time.Now().UTC()
	return &Account{
		ID:               ulid.Make(),
		Email:            normalized,
		PasswordHash:     passwordHash,
		Role:             role,
		OnboardingStatus: onboarding.StatusPending,
		OnboardingStep:   onboarding.FirstStep(role),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// HasPassword reports whether the account has a local credential.
func (a *Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// EmailVerified reports whether the account's mailbox has been proven.
func (a *Account) EmailVerified() bool {
	return a.EmailVerifiedAt != nil
}

// IsLocked returns true if the account is locked out at now.
func (a *Account) IsLocked(now time.Time) bool {
	return IsLockedOut(a.LockedUntil, now)
}

// RecordSuccess resets failure counter and lockout.
func (a *Account) RecordSuccess(now time.Time) {
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.UpdatedAt = now
}

// Snapshot returns the account's onboarding fields.
func (a *Account) Snapshot() onboarding.Snapshot {
	return onboarding.Snapshot{Role: a.Role, Status: a.OnboardingStatus, Step: a.OnboardingStep}
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// Create stores a new account. Returns ErrAlreadyExists if the email is taken.
	Create(ctx context.Context, account *Account) error

	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Account, error)

	// GetByEmail retrieves an account by normalized email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// SetPasswordIfAbsent stores hash only when the account has none.
	// Returns false when a hash was already present; ErrNotFound if no account.
	SetPasswordIfAbsent(ctx context.Context, id ulid.ULID, hash string) (bool, error)

	// ReplacePassword overwrites the hash, clears lockout, and marks the email
	// verified at verifiedAt if it was not already.
	ReplacePassword(ctx context.Context, id ulid.ULID, hash string, verifiedAt time.Time) error

	// RecordFailedLogin increments the failure counter in place and returns
	// the new count. When the count reaches threshold, locked_until is set
	// to lockUntil. Concurrent failures each count.
	RecordFailedLogin(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (failedAttempts int, lockedUntil *time.Time, err error)

	// RecordSuccessfulLogin clears the lockout counters. A non-empty rehash
	// replaces the stored hash.
	RecordSuccessfulLogin(ctx context.Context, id ulid.ULID, rehash string) error

	// UpdateOnboarding applies upd unless the account is COMPLETED and upd
	// would leave COMPLETED without Override. Returns false when refused or
	// when no account matched, and onboarding.ErrSuperseded when
	// upd.ProgressVersion is behind the stored progress.
	UpdateOnboarding(ctx context.Context, id ulid.ULID, upd onboarding.Update) (bool, error)

	// MarkEmailVerified sets the verification timestamp if unset.
	MarkEmailVerified(ctx context.Context, id ulid.ULID, at time.Time) error

	// Delete removes an account and, by cascade, its links and progress.
	Delete(ctx context.Context, id ulid.ULID) error

	// ListOrphaned returns accounts that have neither a password nor a link.
	ListOrphaned(ctx context.Context, limit int) ([]*Account, error)
}
