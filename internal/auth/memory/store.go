// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

// Package memory provides in-process implementations of the auth and
// onboarding repositories. They back local development (`storage.driver:
// memory`) and tests.
package memory

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

type providerKey struct {
	provider string
	id       string
}

type profileKey struct {
	account ulid.ULID
	role    onboarding.Role
}

// Store holds every table behind one mutex so account deletion can cascade.
type Store struct {
	mu        sync.Mutex
	accounts  map[ulid.ULID]auth.Account
	byEmail   map[string]ulid.ULID
	links     map[providerKey]auth.IdentityLink
	tokens    map[string][]auth.VerificationToken
	progress  map[ulid.ULID]onboarding.Progress
	profiles  map[profileKey]time.Time
	details   map[ulid.ULID]onboarding.ProfileDetails
	usernames map[string]ulid.ULID
	interests map[ulid.ULID][]string
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		accounts:  make(map[ulid.ULID]auth.Account),
		byEmail:   make(map[string]ulid.ULID),
		links:     make(map[providerKey]auth.IdentityLink),
		tokens:    make(map[string][]auth.VerificationToken),
		progress:  make(map[ulid.ULID]onboarding.Progress),
		profiles:  make(map[profileKey]time.Time),
		details:   make(map[ulid.ULID]onboarding.ProfileDetails),
		usernames: make(map[string]ulid.ULID),
		interests: make(map[ulid.ULID][]string),
	}
}

// Accounts returns the account repository.
func (s *Store) Accounts() *AccountRepository { return &AccountRepository{s: s} }

// Links returns the identity link repository.
func (s *Store) Links() *LinkRepository { return &LinkRepository{s: s} }

// Tokens returns the verification token repository.
func (s *Store) Tokens() *TokenRepository { return &TokenRepository{s: s} }

// Progress returns the onboarding progress repository.
func (s *Store) Progress() *ProgressRepository { return &ProgressRepository{s: s} }

// Profiles returns the role profile repository.
func (s *Store) Profiles() *ProfileRepository { return &ProfileRepository{s: s} }

func copyAccount(a auth.Account) *auth.Account {
	if a.EmailVerifiedAt != nil {
		t := *a.EmailVerifiedAt
		a.EmailVerifiedAt = &t
	}
	if a.LockedUntil != nil {
		t := *a.LockedUntil
		a.LockedUntil = &t
	}
	return &a
}

// AccountRepository implements auth.AccountRepository.
type AccountRepository struct{ s *Store }

var _ auth.AccountRepository = (*AccountRepository)(nil)

// Create implements auth.AccountRepository.
func (r *AccountRepository) Create(_ context.Context, account *auth.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(account.Email)
	if _, ok := r.s.byEmail[email]; ok {
		return oops.With("email", email).Wrap(auth.ErrAlreadyExists)
	}
	if _, ok := r.s.accounts[account.ID]; ok {
		return oops.With("account_id", account.ID.String()).Wrap(auth.ErrAlreadyExists)
	}
	r.s.accounts[account.ID] = *copyAccount(*account)
	r.s.byEmail[email] = account.ID
	return nil
}

// GetByID implements auth.AccountRepository.
func (r *AccountRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return nil, oops.With("account_id", id.String()).Wrap(auth.ErrNotFound)
	}
	return copyAccount(a), nil
}

// GetByEmail implements auth.AccountRepository.
func (r *AccountRepository) GetByEmail(_ context.Context, email string) (*auth.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, oops.With("email", email).Wrap(auth.ErrNotFound)
	}
	return copyAccount(r.s.accounts[id]), nil
}

// update applies fn to a stored account under the lock.
func (r *AccountRepository) update(id ulid.ULID, fn func(a *auth.Account) bool) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return false, oops.With("account_id", id.String()).Wrap(auth.ErrNotFound)
	}
	if !fn(&a) {
		return false, nil
	}
	a.UpdatedAt = time.Now().UTC()
	r.s.accounts[id] = a
	return true, nil
}

// SetPasswordIfAbsent implements auth.AccountRepository.
func (r *AccountRepository) SetPasswordIfAbsent(_ context.Context, id ulid.ULID, hash string) (bool, error) {
	return r.update(id, func(a *auth.Account) bool {
		if a.PasswordHash != "" {
			return false
		}
		a.PasswordHash = hash
		return true
	})
}

// ReplacePassword implements auth.AccountRepository.
func (r *AccountRepository) ReplacePassword(_ context.Context, id ulid.ULID, hash string, verifiedAt time.Time) error {
	_, err := r.update(id, func(a *auth.Account) bool {
		a.PasswordHash = hash
		a.FailedAttempts = 0
		a.LockedUntil = nil
		if a.EmailVerifiedAt == nil {
			a.EmailVerifiedAt = &verifiedAt
		}
		return true
	})
	return err
}

// RecordFailedLogin implements auth.AccountRepository.
func (r *AccountRepository) RecordFailedLogin(_ context.Context, id ulid.ULID, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	var (
		failures int
		locked   *time.Time
	)
	_, err := r.update(id, func(a *auth.Account) bool {
		a.FailedAttempts++
		if a.FailedAttempts >= threshold {
			t := lockUntil
			a.LockedUntil = &t
		}
		failures = a.FailedAttempts
		if a.LockedUntil != nil {
			t := *a.LockedUntil
			locked = &t
		}
		return true
	})
	if err != nil {
		return 0, nil, err
	}
	return failures, locked, nil
}

// RecordSuccessfulLogin implements auth.AccountRepository.
func (r *AccountRepository) RecordSuccessfulLogin(_ context.Context, id ulid.ULID, rehash string) error {
	_, err := r.update(id, func(a *auth.Account) bool {
		a.FailedAttempts = 0
		a.LockedUntil = nil
		if rehash != "" {
			a.PasswordHash = rehash
		}
		return true
	})
	return err
}

// UpdateOnboarding implements auth.AccountRepository.
func (r *AccountRepository) UpdateOnboarding(_ context.Context, id ulid.ULID, upd onboarding.Update) (bool, error) {
	superseded := false
	applied, err := r.update(id, func(a *auth.Account) bool {
		if p, ok := r.s.progress[id]; ok && upd.ProgressVersion > 0 && p.Version > upd.ProgressVersion {
			superseded = true
			return false
		}
		next := a.OnboardingStatus
		if upd.Status != nil {
			next = *upd.Status
		}
		if a.OnboardingStatus == onboarding.StatusCompleted && next != onboarding.StatusCompleted && !upd.Override {
			return false
		}
		if upd.Role != nil {
			a.Role = *upd.Role
		}
		a.OnboardingStatus = next
		if upd.Step != nil {
			a.OnboardingStep = *upd.Step
		}
		return true
	})
	if errors.Is(err, auth.ErrNotFound) {
		return false, nil
	}
	if superseded {
		return false, oops.With("account_id", id.String()).
			With("progress_version", upd.ProgressVersion).
			Wrap(onboarding.ErrSuperseded)
	}
	return applied, err
}

// MarkEmailVerified implements auth.AccountRepository.
func (r *AccountRepository) MarkEmailVerified(_ context.Context, id ulid.ULID, at time.Time) error {
	_, err := r.update(id, func(a *auth.Account) bool {
		if a.EmailVerifiedAt == nil {
			a.EmailVerifiedAt = &at
		}
		return true
	})
	return err
}

// Delete implements auth.AccountRepository.
func (r *AccountRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.accounts[id]
	if !ok {
		return oops.With("account_id", id.String()).Wrap(auth.ErrNotFound)
	}
	delete(r.s.accounts, id)
	delete(r.s.byEmail, strings.ToLower(a.Email))
	delete(r.s.progress, id)
	for k, l := range r.s.links {
		if l.AccountID == id {
			delete(r.s.links, k)
		}
	}
	for k := range r.s.profiles {
		if k.account == id {
			delete(r.s.profiles, k)
		}
	}
	if d, ok := r.s.details[id]; ok {
		delete(r.s.usernames, d.Username)
		delete(r.s.details, id)
	}
	delete(r.s.interests, id)
	return nil
}

// ListOrphaned implements auth.AccountRepository.
func (r *AccountRepository) ListOrphaned(_ context.Context, limit int) ([]*auth.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	linked := make(map[ulid.ULID]bool, len(r.s.links))
	for _, l := range r.s.links {
		linked[l.AccountID] = true
	}
	var out []*auth.Account
	for _, a := range r.s.accounts {
		if a.PasswordHash == "" && !linked[a.ID] {
			out = append(out, copyAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LinkRepository implements auth.IdentityLinkRepository.
type LinkRepository struct{ s *Store }

var _ auth.IdentityLinkRepository = (*LinkRepository)(nil)

// Create implements auth.IdentityLinkRepository.
func (r *LinkRepository) Create(_ context.Context, link *auth.IdentityLink) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[link.AccountID]; !ok {
		return oops.With("account_id", link.AccountID.String()).Wrap(auth.ErrNotFound)
	}
	key := providerKey{provider: link.Provider, id: link.ProviderAccountID}
	if _, ok := r.s.links[key]; ok {
		return oops.With("provider", link.Provider).Wrap(auth.ErrAlreadyExists)
	}
	for _, l := range r.s.links {
		if l.AccountID == link.AccountID && l.Provider == link.Provider {
			return oops.With("provider", link.Provider).Wrap(auth.ErrAlreadyExists)
		}
	}
	r.s.links[key] = *link
	return nil
}

// GetByProvider implements auth.IdentityLinkRepository.
func (r *LinkRepository) GetByProvider(_ context.Context, provider, providerAccountID string) (*auth.IdentityLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	l, ok := r.s.links[providerKey{provider: provider, id: providerAccountID}]
	if !ok {
		return nil, oops.With("provider", provider).Wrap(auth.ErrNotFound)
	}
	return &l, nil
}

// ListByAccount implements auth.IdentityLinkRepository.
func (r *LinkRepository) ListByAccount(_ context.Context, accountID ulid.ULID) ([]*auth.IdentityLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*auth.IdentityLink
	for _, l := range r.s.links {
		if l.AccountID == accountID {
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// TokenRepository implements auth.VerificationTokenRepository.
type TokenRepository struct{ s *Store }

var _ auth.VerificationTokenRepository = (*TokenRepository)(nil)

// Replace implements auth.VerificationTokenRepository.
func (r *TokenRepository) Replace(_ context.Context, token *auth.VerificationToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.tokens[token.Identifier] = []auth.VerificationToken{*token}
	return nil
}

// Consume implements auth.VerificationTokenRepository.
func (r *TokenRepository) Consume(_ context.Context, identifier, tokenHash string) (*auth.VerificationToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tokens := r.s.tokens[identifier]
	i := slices.IndexFunc(tokens, func(t auth.VerificationToken) bool { return t.TokenHash == tokenHash })
	if i < 0 {
		return nil, oops.With("identifier", identifier).Wrap(auth.ErrNotFound)
	}
	t := tokens[i]
	tokens = slices.Delete(tokens, i, i+1)
	if len(tokens) == 0 {
		delete(r.s.tokens, identifier)
	} else {
		r.s.tokens[identifier] = tokens
	}
	return &t, nil
}

// DeleteByIdentifier implements auth.VerificationTokenRepository.
func (r *TokenRepository) DeleteByIdentifier(_ context.Context, identifier string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.tokens, identifier)
	return nil
}

// DeleteExpired implements auth.VerificationTokenRepository.
func (r *TokenRepository) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, tokens := range r.s.tokens {
		kept := tokens[:0]
		for _, t := range tokens {
			if t.ExpiresAt.Before(before) {
				n++
				continue
			}
			kept = append(kept, t)
		}
		if len(kept) == 0 {
			delete(r.s.tokens, id)
		} else {
			r.s.tokens[id] = kept
		}
	}
	return n, nil
}

// Count returns the number of stored tokens for identifier.
func (r *TokenRepository) Count(identifier string) int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.tokens[identifier])
}
