// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package onboarding

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Repository errors.
var (
	// ErrProgressNotFound is returned when an account has no progress record.
	ErrProgressNotFound = errutil.WithKind(errutil.KindNotFound, errors.New("onboarding progress not found"))

	// ErrStaleProgress is returned by Save when the stored version moved on.
	ErrStaleProgress = errutil.WithKind(errutil.KindConflict, errors.New("onboarding progress changed concurrently"))

	// ErrSuperseded is returned by an account write whose ProgressVersion is
	// older than the stored progress. A later transition owns the fields.
	ErrSuperseded = errutil.WithKind(errutil.KindConflict, errors.New("onboarding write superseded by a later transition"))
)

// Progress is the per-account record of completed steps.
type Progress struct {
	AccountID      ulid.ULID
	CurrentStep    Step
	CompletedSteps []Step
	StartedAt      time.Time
	CompletedAt    *time.Time
	UpdatedAt      time.Time
	// Version increments on every successful Save.
	Version int
}

// NewProgress returns a fresh record positioned at role's first step.
func NewProgress(accountID ulid.ULID, role Role, now time.Time) *Progress {
	return &Progress{
		AccountID:      accountID,
		CurrentStep:    FirstStep(role),
		CompletedSteps: []Step{},
		StartedAt:      now,
		UpdatedAt:      now,
	}
}

// HasCompleted reports whether step is in CompletedSteps.
func (p *Progress) HasCompleted(step Step) bool {
	return slices.Contains(p.CompletedSteps, step)
}

func (p *Progress) clone() Progress {
	c := *p
	c.CompletedSteps = slices.Clone(p.CompletedSteps)
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// Snapshot is the onboarding state stored on the account record itself.
// Step is empty when Status is COMPLETED.
type Snapshot struct {
	Role   Role
	Status Status
	Step   Step
}

// Update is a partial write of account onboarding state. Nil fields are left
// unchanged; a non-nil Step pointing at "" clears the step.
type Update struct {
	Role   *Role
	Status *Status
	Step   *Step
	// Override permits moving a COMPLETED account back to an earlier state.
	// Only administrative tooling sets it.
	Override bool
	// ProgressVersion is the progress version the fields were derived from.
	// When non-zero the write is refused with ErrSuperseded once the stored
	// progress has moved past it.
	ProgressVersion int
}

// AccountStore reads and writes account onboarding state.
type AccountStore interface {
	// OnboardingSnapshot returns the account's current onboarding fields.
	OnboardingSnapshot(ctx context.Context, accountID ulid.ULID) (Snapshot, error)

	// UpdateOnboarding applies a partial update. Returns ErrSuperseded when
	// upd.ProgressVersion is behind the stored progress.
	UpdateOnboarding(ctx context.Context, accountID ulid.ULID, upd Update) error
}

// ProgressRepository persists onboarding progress.
type ProgressRepository interface {
	// Get returns the progress for an account, or ErrProgressNotFound.
	Get(ctx context.Context, accountID ulid.ULID) (*Progress, error)

	// CreateIfAbsent stores p unless a record already exists.
	// Returns true when p was stored.
	CreateIfAbsent(ctx context.Context, p *Progress) (bool, error)

	// Save writes p if the stored version equals p.Version, then increments
	// p.Version. Returns ErrStaleProgress otherwise.
	Save(ctx context.Context, p *Progress) error
}

// ProfileRepository stores role-specific profile records and the data
// collected during onboarding.
type ProfileRepository interface {
	// EnsureProfile creates the profile for role if absent. An existing
	// profile is left untouched. Returns true when a profile was created.
	EnsureProfile(ctx context.Context, accountID ulid.ULID, role Role) (bool, error)

	// SaveDetails stores the account's full name and username, replacing any
	// earlier values. Returns ErrUsernameTaken when another account holds
	// the username.
	SaveDetails(ctx context.Context, accountID ulid.ULID, details ProfileDetails) error

	// SaveInterests replaces the traveler's interests, creating the
	// traveler profile if needed.
	SaveInterests(ctx context.Context, accountID ulid.ULID, interests []string) error
}
