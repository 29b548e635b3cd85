// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package postgres

import (
	"context"
	"crypto/rand"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

const (
	referralPrefix   = "HOST_"
	referralLength   = 10
	referralAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralAttempts = 3
)

// ProfileRepository implements onboarding.ProfileRepository using PostgreSQL.
type ProfileRepository struct {
	pool poolIface
}

var _ onboarding.ProfileRepository = (*ProfileRepository)(nil)

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(pool poolIface) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

// EnsureProfile creates the role's profile row if absent. ADMIN has no
// profile. Host profiles get a unique referral code.
func (r *ProfileRepository) EnsureProfile(ctx context.Context, accountID ulid.ULID, role onboarding.Role) (bool, error) {
	switch role {
	case onboarding.RoleTraveler:
		return r.insert(ctx, accountID, role,
			`INSERT INTO traveler_profiles (account_id) VALUES ($1) ON CONFLICT (account_id) DO NOTHING`,
			accountID.String())
	case onboarding.RoleInfluencer:
		return r.insert(ctx, accountID, role,
			`INSERT INTO influencer_profiles (account_id) VALUES ($1) ON CONFLICT (account_id) DO NOTHING`,
			accountID.String())
	case onboarding.RoleHost:
		return r.ensureHost(ctx, accountID)
	default:
		return false, nil
	}
}

func (r *ProfileRepository) ensureHost(ctx context.Context, accountID ulid.ULID) (bool, error) {
	var lastErr error
	for range referralAttempts {
		code, err := ReferralCode()
		if err != nil {
			return false, err
		}
		created, err := r.insert(ctx, accountID, onboarding.RoleHost,
			`INSERT INTO host_profiles (account_id, referral_code) VALUES ($1, $2) ON CONFLICT (account_id) DO NOTHING`,
			accountID.String(), code)
		if err == nil {
			return created, nil
		}
		if !isUniqueViolation(err) {
			return false, err
		}
		// Referral code collision; draw another.
		lastErr = err
	}
	return false, oops.Code("REFERRAL_CODE_EXHAUSTED").
		With("account_id", accountID.String()).
		With("attempts", referralAttempts).
		Wrap(lastErr)
}

// SaveDetails upserts the account's full name and username. The unique
// index on username turns a clash into onboarding.ErrUsernameTaken.
func (r *ProfileRepository) SaveDetails(ctx context.Context, accountID ulid.ULID, details onboarding.ProfileDetails) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO profile_details (account_id, full_name, username)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    username = EXCLUDED.username,
		    updated_at = now()
	`, accountID.String(), details.FullName, details.Username)
	switch {
	case isUniqueViolation(err):
		return oops.Code("USERNAME_TAKEN").
			With("account_id", accountID.String()).
			With("username", details.Username).
			Wrap(onboarding.ErrUsernameTaken)
	case isForeignKeyViolation(err):
		return oops.Code("ACCOUNT_NOT_FOUND").With("account_id", accountID.String()).Wrap(auth.ErrNotFound)
	case err != nil:
		return oops.Code("PROFILE_DETAILS_SAVE_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	return nil
}

// SaveInterests replaces traveler_profiles.interests, creating the row
// when the traveler profile does not exist yet.
func (r *ProfileRepository) SaveInterests(ctx context.Context, accountID ulid.ULID, interests []string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO traveler_profiles (account_id, interests)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET interests = EXCLUDED.interests
	`, accountID.String(), interests)
	if isForeignKeyViolation(err) {
		return oops.Code("ACCOUNT_NOT_FOUND").With("account_id", accountID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("PROFILE_INTERESTS_SAVE_FAILED").With("account_id", accountID.String()).Wrap(err)
	}
	return nil
}

func (r *ProfileRepository) insert(ctx context.Context, accountID ulid.ULID, role onboarding.Role, sql string, args ...any) (bool, error) {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if isForeignKeyViolation(err) {
		return false, oops.Code("ACCOUNT_NOT_FOUND").With("account_id", accountID.String()).Wrap(auth.ErrNotFound)
	}
	if isUniqueViolation(err) {
		return false, err
	}
	if err != nil {
		return false, oops.Code("PROFILE_CREATE_FAILED").
			With("account_id", accountID.String()).
			With("role", role).
			Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReferralCode returns a random host referral code such as HOST_7QK2M9XA4B.
func ReferralCode() (string, error) {
	b := make([]byte, referralLength)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("REFERRAL_CODE_FAILED").Wrap(err)
	}
	for i := range b {
		b[i] = referralAlphabet[int(b[i])%len(referralAlphabet)]
	}
	return referralPrefix + string(b), nil
}
