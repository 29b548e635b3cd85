// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/onboarding"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Credential failures. Errors returned by CredentialStore wrap these, so
// callers can branch with errors.Is.
var (
	ErrDuplicateEmail     = errutil.WithKind(errutil.KindConflict, errors.New("email already registered"))
	ErrAlreadyHasPassword = errutil.WithKind(errutil.KindConflict, errors.New("account already has a password"))
	ErrNoSuchAccount      = errutil.WithKind(errutil.KindNotFound, errors.New("no account with this email"))
	ErrNoPasswordSet      = errutil.WithKind(errutil.KindUnauthorized, errors.New("account has no password set"))
	ErrWrongPassword      = errutil.WithKind(errutil.KindUnauthorized, errors.New("wrong password"))
	ErrAccountLocked      = errutil.WithKind(errutil.KindUnauthorized, errors.New("account is temporarily locked"))
	ErrOnboardingTerminal = errutil.WithKind(errutil.KindConflict, errors.New("onboarding is already completed"))
)

// dummyPasswordHash is used when an account doesn't exist or has no password
// to keep response time consistent. It never matches any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CredentialStore owns the account record and is the only writer of
// onboarding state.
type CredentialStore struct {
	accounts AccountRepository
	hasher   PasswordHasher
	logger   *slog.Logger
	now      func() time.Time
}

// CredentialOption configures a CredentialStore.
type CredentialOption func(*CredentialStore)

// WithCredentialLogger sets the logger for best-effort writes.
func WithCredentialLogger(logger *slog.Logger) CredentialOption {
	return func(s *CredentialStore) { s.logger = logger }
}

// WithCredentialClock overrides time.Now.
func WithCredentialClock(now func() time.Time) CredentialOption {
	return func(s *CredentialStore) { s.now = now }
}

// NewCredentialStore creates a new CredentialStore.
func NewCredentialStore(accounts AccountRepository, hasher PasswordHasher, opts ...CredentialOption) *CredentialStore {
	s := &CredentialStore{
		accounts: accounts,
		hasher:   hasher,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HashPassword validates password and returns its hash.
func (s *CredentialStore) HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", oops.Code("PASSWORD_HASH_FAILED").Wrap(err)
	}
	return hash, nil
}

// CreateAccount stores a new account. passwordHash may be empty.
func (s *CredentialStore) CreateAccount(ctx context.Context, email, passwordHash string, role onboarding.Role) (*Account, error) {
	account, err := NewAccount(email, passwordHash, role)
	if err != nil {
		return nil, err
	}

	_, err = s.accounts.GetByEmail(ctx, account.Email)
	switch {
	case err == nil:
		return nil, duplicateEmail(account.Email)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "check existing email").
			With("email", account.Email).
			Wrap(err)
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, duplicateEmail(account.Email)
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", account.Email).
			Wrap(err)
	}
	return account, nil
}

func duplicateEmail(email string) error {
	return oops.Code("DUPLICATE_EMAIL").With("email", email).Wrap(ErrDuplicateEmail)
}

// GetByID retrieves an account by ID.
func (s *CredentialStore) GetByID(ctx context.Context, id ulid.ULID) (*Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, oops.With("operation", "get account by id").Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by email, normalizing it first.
func (s *CredentialStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	account, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, oops.With("operation", "get account by email").Wrap(err)
	}
	return account, nil
}

// AttachPassword sets the first password of an account. It never
// overwrites an existing hash.
func (s *CredentialStore) AttachPassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	if passwordHash == "" {
		return ErrEmptyPassword
	}
	stored, err := s.accounts.SetPasswordIfAbsent(ctx, id, passwordHash)
	if err != nil {
		return oops.Code("ATTACH_PASSWORD_FAILED").With("account_id", id.String()).Wrap(err)
	}
	if !stored {
		return oops.Code("ALREADY_HAS_PASSWORD").With("account_id", id.String()).Wrap(ErrAlreadyHasPassword)
	}
	return nil
}

// ReplacePassword overwrites the password after a verified reset.
func (s *CredentialStore) ReplacePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	if passwordHash == "" {
		return ErrEmptyPassword
	}
	if err := s.accounts.ReplacePassword(ctx, id, passwordHash, s.now().UTC()); err != nil {
		return oops.Code("REPLACE_PASSWORD_FAILED").With("account_id", id.String()).Wrap(err)
	}
	return nil
}

// VerifyPassword checks a password sign-in.
//
// The failure modes are distinct: ErrNoSuchAccount, ErrNoPasswordSet (the
// account only signs in through a provider), ErrWrongPassword and
// ErrAccountLocked. A hash verification runs in every case so response time
// does not reveal which one occurred.
func (s *CredentialStore) VerifyPassword(ctx context.Context, email, password string) (*Account, error) {
	email = NormalizeEmail(email)
	account, lookupErr := s.accounts.GetByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return nil, oops.Code("VERIFY_PASSWORD_FAILED").
			With("operation", "get account by email").
			Wrap(lookupErr)
	}

	targetHash := dummyPasswordHash
	if account != nil && account.HasPassword() {
		targetHash = account.PasswordHash
	}
	valid, verifyErr := s.hasher.Verify(password, targetHash)

	if account == nil {
		return nil, oops.Code("NO_SUCH_ACCOUNT").With("email", email).Wrap(ErrNoSuchAccount)
	}
	if !account.HasPassword() {
		return nil, oops.Code("NO_PASSWORD_SET").
			With("account_id", account.ID.String()).
			Wrap(ErrNoPasswordSet)
	}
	if verifyErr != nil {
		return nil, oops.Code("VERIFY_PASSWORD_FAILED").
			With("operation", "verify password").
			With("account_id", account.ID.String()).
			Wrap(verifyErr)
	}

	now := s.now()
	if !valid {
		failures, lockedUntil, err := s.accounts.RecordFailedLogin(ctx, account.ID, LockoutThreshold, now.Add(LockoutDuration))
		if err != nil {
			errutil.LogWarn(s.logger.With("account_id", account.ID.String()), "record failed login failed", err)
			failures, lockedUntil = account.FailedAttempts+1, account.LockedUntil
		}
		return nil, oops.Code("WRONG_PASSWORD").
			With("account_id", account.ID.String()).
			With("failed_attempts", failures).
			With("locked", IsLockedOut(lockedUntil, now)).
			Wrap(ErrWrongPassword)
	}

	// Lockout is checked after verification to keep timing constant.
	if account.IsLocked(now) {
		return nil, oops.Code("ACCOUNT_LOCKED").
			With("account_id", account.ID.String()).
			With("locked_until", account.LockedUntil).
			Wrap(ErrAccountLocked)
	}

	account.RecordSuccess(now)
	rehash := ""
	if s.hasher.NeedsUpgrade(account.PasswordHash) {
		if h, err := s.hasher.Hash(password); err == nil {
			rehash = h
			account.PasswordHash = h
		}
	}
	// Sign-in succeeds on the password alone, so a write failure is only logged.
	if err := s.accounts.RecordSuccessfulLogin(ctx, account.ID, rehash); err != nil {
		errutil.LogWarn(s.logger.With("account_id", account.ID.String()), "record login outcome failed", err)
	}
	return account, nil
}

// OnboardingSnapshot returns the account's onboarding fields.
func (s *CredentialStore) OnboardingSnapshot(ctx context.Context, id ulid.ULID) (onboarding.Snapshot, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return onboarding.Snapshot{}, oops.With("operation", "read onboarding state").Wrap(err)
	}
	return account.Snapshot(), nil
}

// UpdateOnboarding applies a partial update of onboarding state.
// A COMPLETED account cannot leave COMPLETED unless upd.Override is set.
// Setting COMPLETED always clears the step. A write derived from an older
// progress version than the stored one fails with onboarding.ErrSuperseded.
func (s *CredentialStore) UpdateOnboarding(ctx context.Context, id ulid.ULID, upd onboarding.Update) error {
	if upd.Role != nil && !upd.Role.Valid() {
		return errutil.WithKind(errutil.KindValidation,
			oops.Code("ROLE_INVALID").With("role", *upd.Role).Errorf("unknown role %q", *upd.Role))
	}
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return errutil.WithKind(errutil.KindValidation,
				oops.Code("STATUS_INVALID").With("status", *upd.Status).Errorf("unknown onboarding status %q", *upd.Status))
		}
		if *upd.Status == onboarding.StatusCompleted {
			empty := onboarding.Step("")
			upd.Step = &empty
		} else if upd.Step != nil && *upd.Step == "" {
			return errutil.WithKind(errutil.KindValidation,
				oops.Code("STEP_REQUIRED").
					With("status", *upd.Status).
					Errorf("an onboarding step is required while onboarding is %s", *upd.Status))
		}
	}

	applied, err := s.accounts.UpdateOnboarding(ctx, id, upd)
	if errors.Is(err, onboarding.ErrSuperseded) {
		return oops.Code("ONBOARDING_SUPERSEDED").
			With("account_id", id.String()).
			With("progress_version", upd.ProgressVersion).
			Wrap(err)
	}
	if err != nil {
		return oops.Code("UPDATE_ONBOARDING_FAILED").With("account_id", id.String()).Wrap(err)
	}
	if applied {
		return nil
	}

	if _, err := s.accounts.GetByID(ctx, id); err != nil {
		return oops.With("operation", "update onboarding").With("account_id", id.String()).Wrap(err)
	}
	return oops.Code("ONBOARDING_TERMINAL").With("account_id", id.String()).Wrap(ErrOnboardingTerminal)
}

// MarkEmailVerified records that the account's mailbox was proven.
func (s *CredentialStore) MarkEmailVerified(ctx context.Context, id ulid.ULID) error {
	if err := s.accounts.MarkEmailVerified(ctx, id, s.now().UTC()); err != nil {
		return oops.Code("MARK_EMAIL_VERIFIED_FAILED").With("account_id", id.String()).Wrap(err)
	}
	return nil
}

// Delete removes an account and everything owned by it. Administrative use only.
func (s *CredentialStore) Delete(ctx context.Context, id ulid.ULID) error {
	if err := s.accounts.Delete(ctx, id); err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").With("account_id", id.String()).Wrap(err)
	}
	s.logger.Info("account deleted", "account_id", id.String())
	return nil
}

// ListOrphaned returns accounts with neither a password nor a provider link.
func (s *CredentialStore) ListOrphaned(ctx context.Context, limit int) ([]*Account, error) {
	if limit <= 0 {
		limit = 100
	}
	accounts, err := s.accounts.ListOrphaned(ctx, limit)
	if err != nil {
		return nil, oops.Code("LIST_ORPHANED_FAILED").Wrap(err)
	}
	return accounts, nil
}
