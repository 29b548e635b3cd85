// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package memory

import (
	"context"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

func copyProgress(p onboarding.Progress) *onboarding.Progress {
	p.CompletedSteps = slices.Clone(p.CompletedSteps)
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		p.CompletedAt = &t
	}
	return &p
}

// ProgressRepository implements onboarding.ProgressRepository.
type ProgressRepository struct{ s *Store }

var _ onboarding.ProgressRepository = (*ProgressRepository)(nil)

// Get implements onboarding.ProgressRepository.
func (r *ProgressRepository) Get(_ context.Context, accountID ulid.ULID) (*onboarding.Progress, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.progress[accountID]
	if !ok {
		return nil, oops.With("account_id", accountID.String()).Wrap(onboarding.ErrProgressNotFound)
	}
	return copyProgress(p), nil
}

// CreateIfAbsent implements onboarding.ProgressRepository.
func (r *ProgressRepository) CreateIfAbsent(_ context.Context, p *onboarding.Progress) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[p.AccountID]; !ok {
		return false, oops.With("account_id", p.AccountID.String()).Wrap(auth.ErrNotFound)
	}
	if _, ok := r.s.progress[p.AccountID]; ok {
		return false, nil
	}
	r.s.progress[p.AccountID] = *copyProgress(*p)
	return true, nil
}

// Save implements onboarding.ProgressRepository.
func (r *ProgressRepository) Save(_ context.Context, p *onboarding.Progress) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.progress[p.AccountID]
	if !ok || cur.Version != p.Version {
		return oops.With("account_id", p.AccountID.String()).
			With("version", p.Version).
			Wrap(onboarding.ErrStaleProgress)
	}
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	r.s.progress[p.AccountID] = *copyProgress(*p)
	return nil
}

// ProfileRepository implements onboarding.ProfileRepository.
type ProfileRepository struct{ s *Store }

var _ onboarding.ProfileRepository = (*ProfileRepository)(nil)

// EnsureProfile implements onboarding.ProfileRepository.
func (r *ProfileRepository) EnsureProfile(_ context.Context, accountID ulid.ULID, role onboarding.Role) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[accountID]; !ok {
		return false, oops.With("account_id", accountID.String()).Wrap(auth.ErrNotFound)
	}
	key := profileKey{account: accountID, role: role}
	if _, ok := r.s.profiles[key]; ok {
		return false, nil
	}
	r.s.profiles[key] = time.Now().UTC()
	return true, nil
}

// SaveDetails implements onboarding.ProfileRepository.
func (r *ProfileRepository) SaveDetails(_ context.Context, accountID ulid.ULID, details onboarding.ProfileDetails) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[accountID]; !ok {
		return oops.With("account_id", accountID.String()).Wrap(auth.ErrNotFound)
	}
	if owner, ok := r.s.usernames[details.Username]; ok && owner != accountID {
		return oops.Code("USERNAME_TAKEN").With("username", details.Username).Wrap(onboarding.ErrUsernameTaken)
	}
	if prev, ok := r.s.details[accountID]; ok {
		delete(r.s.usernames, prev.Username)
	}
	r.s.details[accountID] = details
	r.s.usernames[details.Username] = accountID
	return nil
}

// SaveInterests implements onboarding.ProfileRepository.
func (r *ProfileRepository) SaveInterests(_ context.Context, accountID ulid.ULID, interests []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[accountID]; !ok {
		return oops.With("account_id", accountID.String()).Wrap(auth.ErrNotFound)
	}
	key := profileKey{account: accountID, role: onboarding.RoleTraveler}
	if _, ok := r.s.profiles[key]; !ok {
		r.s.profiles[key] = time.Now().UTC()
	}
	r.s.interests[accountID] = slices.Clone(interests)
	return nil
}

// Details returns the stored profile details for accountID.
func (r *ProfileRepository) Details(accountID ulid.ULID) (onboarding.ProfileDetails, bool) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.details[accountID]
	return d, ok
}

// Interests returns the stored traveler interests for accountID.
func (r *ProfileRepository) Interests(accountID ulid.ULID) []string {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return slices.Clone(r.s.interests[accountID])
}

// HasProfile reports whether a profile exists for accountID and role.
func (r *ProfileRepository) HasProfile(accountID ulid.ULID, role onboarding.Role) bool {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.profiles[profileKey{account: accountID, role: role}]
	return ok
}
