// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

const accountColumns = `id, email, COALESCE(password_hash, ''), role, onboarding_status,
	COALESCE(onboarding_step, ''), email_verified_at, failed_attempts, locked_until,
	created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool poolIface
}

var _ auth.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool poolIface) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create stores a new account.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (
			id, email, password_hash, role, onboarding_status, onboarding_step,
			email_verified_at, failed_attempts, locked_until, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		account.ID.String(),
		account.Email,
		nullable(account.PasswordHash),
		string(account.Role),
		string(account.OnboardingStatus),
		nullable(string(account.OnboardingStep)),
		account.EmailVerifiedAt,
		account.FailedAttempts,
		account.LockedUntil,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return oops.Code("ACCOUNT_EXISTS").With("email", account.Email).Wrap(auth.ErrAlreadyExists)
	}
	if err != nil {
		return oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("email", account.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id.String())
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").With("id", id.String()).Wrap(err)
	}
	return account, nil
}

// GetByEmail retrieves an account by normalized email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("email", email).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_FAILED").With("email", email).Wrap(err)
	}
	return account, nil
}

// SetPasswordIfAbsent stores hash only when the account has no password.
func (r *AccountRepository) SetPasswordIfAbsent(ctx context.Context, id ulid.ULID, hash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET password_hash = $2, updated_at = now()
		WHERE id = $1 AND password_hash IS NULL
	`, id.String(), hash)
	if err != nil {
		return false, oops.Code("ACCOUNT_SET_PASSWORD_FAILED").With("id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := r.mustExist(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ReplacePassword overwrites the hash, clears lockout and marks the email verified.
func (r *AccountRepository) ReplacePassword(ctx context.Context, id ulid.ULID, hash string, verifiedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET password_hash = $2,
		    failed_attempts = 0,
		    locked_until = NULL,
		    email_verified_at = COALESCE(email_verified_at, $3),
		    updated_at = now()
		WHERE id = $1
	`, id.String(), hash, verifiedAt)
	if err != nil {
		return oops.Code("ACCOUNT_REPLACE_PASSWORD_FAILED").With("id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// RecordFailedLogin increments failed_attempts in a single statement and
// locks the account once the new count reaches threshold.
func (r *AccountRepository) RecordFailedLogin(ctx context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	var (
		failures int
		locked   *time.Time
	)
	err := r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3::timestamptz ELSE locked_until END,
		    updated_at = now()
		WHERE id = $1
		RETURNING failed_attempts, locked_until
	`, id.String(), threshold, lockUntil).Scan(&failures, &locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return 0, nil, oops.Code("ACCOUNT_RECORD_LOGIN_FAILED").With("id", id.String()).Wrap(err)
	}
	return failures, locked, nil
}

// RecordSuccessfulLogin clears the lockout counters and stores an optional
// upgraded hash.
func (r *AccountRepository) RecordSuccessfulLogin(ctx context.Context, id ulid.ULID, rehash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET failed_attempts = 0,
		    locked_until = NULL,
		    password_hash = COALESCE($2, password_hash),
		    updated_at = now()
		WHERE id = $1
	`, id.String(), nullable(rehash))
	if err != nil {
		return oops.Code("ACCOUNT_RECORD_LOGIN_FAILED").With("id", id.String()).Wrap(err)
	}
	return nil
}

// UpdateOnboarding applies upd in a single conditional statement so a
// concurrent request cannot move a COMPLETED account backwards, and a write
// derived from an older progress version cannot overwrite a newer one.
func (r *AccountRepository) UpdateOnboarding(ctx context.Context, id ulid.ULID, upd onboarding.Update) (bool, error) {
	var role, status *string
	if upd.Role != nil {
		s := string(*upd.Role)
		role = &s
	}
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}
	setStep := upd.Step != nil
	var step string
	if setStep {
		step = string(*upd.Step)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts
		SET role = COALESCE($2::text, role),
		    onboarding_status = COALESCE($3::text, onboarding_status),
		    onboarding_step = CASE WHEN $4::boolean THEN NULLIF($5::text, '') ELSE onboarding_step END,
		    updated_at = now()
		WHERE id = $1
		  AND (onboarding_status <> 'COMPLETED'
		       OR $6::boolean
		       OR COALESCE($3::text, onboarding_status) = 'COMPLETED')
		  AND ($7::integer = 0 OR NOT EXISTS (
		       SELECT 1 FROM onboarding_progress p
		       WHERE p.account_id = $1 AND p.version > $7::integer))
	`, id.String(), role, status, setStep, step, upd.Override, upd.ProgressVersion)
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_ONBOARDING_FAILED").With("id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if upd.ProgressVersion == 0 {
		return false, nil
	}

	var stored int
	err = r.pool.QueryRow(ctx, `SELECT version FROM onboarding_progress WHERE account_id = $1`, id.String()).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("ACCOUNT_UPDATE_ONBOARDING_FAILED").
			With("id", id.String()).
			With("operation", "read progress version").
			Wrap(err)
	}
	if stored > upd.ProgressVersion {
		return false, oops.Code("ONBOARDING_SUPERSEDED").
			With("id", id.String()).
			With("progress_version", upd.ProgressVersion).
			With("stored_version", stored).
			Wrap(onboarding.ErrSuperseded)
	}
	return false, nil
}

// MarkEmailVerified sets email_verified_at if it is unset.
func (r *AccountRepository) MarkEmailVerified(ctx context.Context, id ulid.ULID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET email_verified_at = COALESCE(email_verified_at, $2), updated_at = now()
		WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("ACCOUNT_VERIFY_EMAIL_FAILED").With("id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// Delete removes an account. Links, progress, profiles and ledger rows
// cascade.
func (r *AccountRepository) Delete(ctx context.Context, id ulid.ULID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// ListOrphaned returns accounts with neither a password nor a link, oldest first.
func (r *AccountRepository) ListOrphaned(ctx context.Context, limit int) ([]*auth.Account, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts a
		WHERE a.password_hash IS NULL
		  AND NOT EXISTS (SELECT 1 FROM identity_links l WHERE l.account_id = a.id)
		ORDER BY a.created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LIST_ORPHANED_FAILED").Wrap(err)
	}
	defer rows.Close()

	var accounts []*auth.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, oops.Code("ACCOUNT_LIST_ORPHANED_FAILED").With("operation", "scan account").Wrap(err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("ACCOUNT_LIST_ORPHANED_FAILED").With("operation", "iterate accounts").Wrap(err)
	}
	return accounts, nil
}

func (r *AccountRepository) mustExist(ctx context.Context, id ulid.ULID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id.String()).Scan(&exists); err != nil {
		return oops.Code("ACCOUNT_GET_FAILED").With("id", id.String()).Wrap(err)
	}
	if !exists {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		a                  auth.Account
		id, role, status   string
		step               string
		verified, lockedAt *time.Time
	)
	if err := row.Scan(
		&id, &a.Email, &a.PasswordHash, &role, &status, &step,
		&verified, &a.FailedAttempts, &lockedAt, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := parseID(id, "account_id")
	if err != nil {
		return nil, err
	}
	a.ID = parsed
	a.Role = onboarding.Role(role)
	a.OnboardingStatus = onboarding.Status(status)
	a.OnboardingStep = onboarding.Step(step)
	a.EmailVerifiedAt = verified
	a.LockedUntil = lockedAt
	return &a, nil
}
