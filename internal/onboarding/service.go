// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/poll"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Result describes the state after a Service operation.
type Result struct {
	Snapshot       Snapshot
	Progress       Progress
	Changed        bool
	Completed      bool
	ProfileCreated bool
}

// Service applies onboarding rules and persists the outcome. Progress is
// written first with an optimistic version check. The account fields follow,
// tagged with the progress version they came from so an older transition
// never overwrites a newer one.
type Service struct {
	accounts AccountStore
	progress ProgressRepository
	profiles ProfileRepository
	logger   *slog.Logger
	now      func() time.Time
	contend  poll.Policy
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used for swallowed side-effect failures.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithContentionPolicy sets the retry budget for concurrent progress writes.
func WithContentionPolicy(p poll.Policy) ServiceOption {
	return func(s *Service) { s.contend = p }
}

// NewService creates a new onboarding Service.
func NewService(accounts AccountStore, progress ProgressRepository, profiles ProfileRepository, opts ...ServiceOption) *Service {
	s := &Service{
		accounts: accounts,
		progress: progress,
		profiles: profiles,
		logger:   slog.Default(),
		now:      time.Now,
		contend:  poll.Schedule(10*time.Millisecond, 20*time.Millisecond, 40*time.Millisecond),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed creates a progress record at role's first step unless one exists.
func (s *Service) Seed(ctx context.Context, accountID ulid.ULID, role Role) error {
	if _, err := s.progress.CreateIfAbsent(ctx, NewProgress(accountID, role, s.now())); err != nil {
		return oops.Code("ONBOARDING_SEED_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

// Progress returns the account's progress and onboarding fields, creating
// the progress record if it does not exist yet.
func (s *Service) Progress(ctx context.Context, accountID ulid.ULID) (*Result, error) {
	snap, p, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Result{Snapshot: snap, Progress: *p}, nil
}

// CompleteStep marks step completed for the account. profile-setup and
// interest-selection store data once the transition is known to be legal.
// Completing them requires data; repeating an already completed one only
// stores data when some was sent.
func (s *Service) CompleteStep(ctx context.Context, accountID ulid.ULID, step Step, data StepData) (*Result, error) {
	data = data.Normalize()
	stored := false
	return s.apply(ctx, accountID, nil, func(snap Snapshot, p Progress) (Transition, error) {
		t, err := Advance(p, snap.Role, snap.Status, step, s.now())
		if err != nil || stored || !CarriesData(step) {
			return t, err
		}
		if !t.Changed && data.Empty() {
			return t, nil
		}
		if err := s.storeStepData(ctx, accountID, step, data); err != nil {
			return Transition{}, err
		}
		stored = true
		return t, nil
	})
}

func (s *Service) storeStepData(ctx context.Context, accountID ulid.ULID, step Step, data StepData) error {
	if err := data.Validate(step); err != nil {
		return err
	}

	var err error
	switch step {
	case StepProfileSetup:
		err = s.profiles.SaveDetails(ctx, accountID, ProfileDetails{FullName: data.FullName, Username: data.Username})
	case StepInterestSelection:
		err = s.profiles.SaveInterests(ctx, accountID, data.Interests)
	}
	if errors.Is(err, ErrUsernameTaken) {
		return errutil.WithKind(errutil.KindConflict,
			oops.Code("USERNAME_TAKEN").
				With("account_id", accountID.String()).
				Public("That username is already taken.").
				Wrap(err))
	}
	if err != nil {
		return oops.Code("ONBOARDING_STEP_DATA_FAILED").
			With("account_id", accountID.String()).
			With("step", step).
			Wrap(err)
	}
	return nil
}

// SelectRole assigns role and recomputes the next step. The role profile is
// created if absent; failing to create it does not fail the selection.
func (s *Service) SelectRole(ctx context.Context, accountID ulid.ULID, role Role) (*Result, error) {
	res, err := s.apply(ctx, accountID, &role, func(snap Snapshot, p Progress) (Transition, error) {
		return ChangeRole(p, role, snap.Status, s.now())
	})
	if err != nil {
		return nil, err
	}

	created, err := s.profiles.EnsureProfile(ctx, accountID, role)
	if err != nil {
		errutil.LogWarn(s.logger.With("account_id", accountID.String(), "role", string(role)),
			"role profile creation failed", err)
		return res, nil
	}
	res.ProfileCreated = created
	return res, nil
}

// EnsureProfile creates the profile for role if absent.
func (s *Service) EnsureProfile(ctx context.Context, accountID ulid.ULID, role Role) (bool, error) {
	created, err := s.profiles.EnsureProfile(ctx, accountID, role)
	if err != nil {
		return false, oops.Code("PROFILE_CREATE_FAILED").
			With("account_id", accountID.String()).
			With("role", role).
			Wrap(err)
	}
	return created, nil
}

// Reset moves an account back to its first step, including a COMPLETED one.
// Completed steps are discarded. Administrative use only.
func (s *Service) Reset(ctx context.Context, accountID ulid.ULID) (*Result, error) {
	snap, cur, err := s.load(ctx, accountID)
	if err != nil {
		return nil, err
	}

	fresh := NewProgress(accountID, snap.Role, s.now())
	fresh.Version = cur.Version
	if err := s.progress.Save(ctx, fresh); err != nil {
		return nil, oops.Code("ONBOARDING_RESET_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	status, step := StatusPending, fresh.CurrentStep
	upd := Update{Status: &status, Step: &step, Override: true, ProgressVersion: fresh.Version}
	if err := s.accounts.UpdateOnboarding(ctx, accountID, upd); err != nil {
		return nil, oops.Code("ONBOARDING_RESET_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	s.logger.Info("onboarding reset", "account_id", accountID.String(), "previous_status", string(snap.Status))
	return &Result{
		Snapshot: Snapshot{Role: snap.Role, Status: status, Step: step},
		Progress: *fresh,
		Changed:  true,
	}, nil
}

type rule func(snap Snapshot, p Progress) (Transition, error)

func (s *Service) apply(ctx context.Context, accountID ulid.ULID, role *Role, fn rule) (*Result, error) {
	out, err := poll.Until(ctx, s.contend, func(ctx context.Context) (*Result, bool, error) {
		snap, p, err := s.load(ctx, accountID)
		if err != nil {
			return nil, false, err
		}

		t, err := fn(snap, *p)
		if err != nil {
			return nil, false, err
		}

		newRole := snap.Role
		if role != nil {
			newRole = *role
		}
		res := &Result{
			Snapshot:  Snapshot{Role: newRole, Status: t.Status, Step: t.Step},
			Progress:  t.Progress,
			Changed:   t.Changed,
			Completed: t.Completed,
		}

		if !t.Changed {
			// The account may lag a progress write whose account update failed.
			if snap.Status != StatusCompleted && (snap.Status != t.Status || snap.Step != t.Step) {
				err := s.write(ctx, accountID, res.Snapshot, role, p.Version)
				if errors.Is(err, ErrSuperseded) {
					return s.overtaken(ctx, accountID, res, role)
				}
				if err != nil {
					return nil, false, err
				}
			}
			return res, true, nil
		}

		next := t.Progress
		if err := s.progress.Save(ctx, &next); err != nil {
			if errors.Is(err, ErrStaleProgress) {
				return nil, false, nil
			}
			return nil, false, oops.Code("ONBOARDING_SAVE_FAILED").
				With("account_id", accountID.String()).
				Wrap(err)
		}
		res.Progress = next

		err = s.write(ctx, accountID, res.Snapshot, role, next.Version)
		if errors.Is(err, ErrSuperseded) {
			return s.overtaken(ctx, accountID, res, role)
		}
		if err != nil {
			return nil, false, err
		}
		return res, true, nil
	})
	if err != nil {
		return nil, err
	}
	if out.TimedOut {
		return nil, errutil.WithKind(errutil.KindTransient,
			oops.Code("ONBOARDING_CONTENDED").
				With("account_id", accountID.String()).
				With("attempts", out.Attempts).
				Errorf("onboarding progress is being updated concurrently"))
	}
	return out.Value, nil
}

// overtaken finishes an operation whose account write lost to a later
// transition. Our progress write stands; the result reports the latest
// progress instead of the stale snapshot. A role change is still recorded
// because progress does not carry the role.
func (s *Service) overtaken(ctx context.Context, accountID ulid.ULID, res *Result, role *Role) (*Result, bool, error) {
	if role != nil {
		if err := s.accounts.UpdateOnboarding(ctx, accountID, Update{Role: role}); err != nil {
			return nil, false, oops.Code("ONBOARDING_ACCOUNT_UPDATE_FAILED").
				With("account_id", accountID.String()).
				Wrap(err)
		}
	}
	latest, err := s.progress.Get(ctx, accountID)
	if err != nil {
		return nil, false, oops.Code("ONBOARDING_LOAD_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	res.Snapshot = Resume(*latest, res.Snapshot.Role)
	res.Progress = *latest
	s.logger.Debug("onboarding write overtaken",
		"account_id", accountID.String(),
		"progress_version", latest.Version)
	return res, true, nil
}

func (s *Service) write(ctx context.Context, accountID ulid.ULID, snap Snapshot, role *Role, version int) error {
	upd := Update{Status: &snap.Status, Step: &snap.Step, Role: role, ProgressVersion: version}
	err := s.accounts.UpdateOnboarding(ctx, accountID, upd)
	if errors.Is(err, ErrSuperseded) {
		return err
	}
	if err != nil {
		return oops.Code("ONBOARDING_ACCOUNT_UPDATE_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, accountID ulid.ULID) (Snapshot, *Progress, error) {
	snap, err := s.accounts.OnboardingSnapshot(ctx, accountID)
	if err != nil {
		return Snapshot{}, nil, oops.Code("ONBOARDING_LOAD_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}

	p, err := s.progress.Get(ctx, accountID)
	if errors.Is(err, ErrProgressNotFound) {
		if _, err := s.progress.CreateIfAbsent(ctx, NewProgress(accountID, snap.Role, s.now())); err != nil {
			return Snapshot{}, nil, oops.Code("ONBOARDING_SEED_FAILED").
				With("account_id", accountID.String()).
				Wrap(err)
		}
		// Re-read so a concurrent creator's record wins.
		p, err = s.progress.Get(ctx, accountID)
	}
	if err != nil {
		return Snapshot{}, nil, oops.Code("ONBOARDING_LOAD_FAILED").
			With("account_id", accountID.String()).
			Wrap(err)
	}
	return snap, p, nil
}
