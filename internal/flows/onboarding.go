// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows

import (
	"context"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

// Progress returns an account's onboarding state.
func (s *Service) Progress(ctx context.Context, accountID ulid.ULID) (res *OnboardingResult, err error) {
	ctx, done := s.start(ctx, "onboarding_progress", accountAttr(accountID))
	defer func() { done(err) }()

	r, err := s.onboarding.Progress(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return resultOf(r), nil
}

// SelectRole assigns the account's role and returns a session reflecting it.
func (s *Service) SelectRole(ctx context.Context, accountID ulid.ULID, role onboarding.Role) (res *OnboardingResult, err error) {
	ctx, done := s.start(ctx, "select_role", accountAttr(accountID), attribute.String("role", string(role)))
	defer func() { done(err) }()

	r, err := s.onboarding.SelectRole(ctx, accountID, role)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, accountID, r)
}

// CompleteStep marks an onboarding step done, storing the profile data the
// step carries, and returns a session reflecting the new state. Finishing
// onboarding awards points once.
func (s *Service) CompleteStep(ctx context.Context, accountID ulid.ULID, step onboarding.Step, data onboarding.StepData) (res *OnboardingResult, err error) {
	ctx, done := s.start(ctx, "complete_step", accountAttr(accountID), attribute.String("step", string(step)))
	defer func() { done(err) }()

	r, err := s.onboarding.CompleteStep(ctx, accountID, step, data)
	if err != nil {
		return nil, err
	}
	if r.Completed && r.Changed {
		s.award(ctx, accountID, RewardOnboardingComplete, OnboardingCompletePoints)
		s.logger.InfoContext(ctx, "onboarding completed",
			"account_id", accountID.String(), "role", string(r.Snapshot.Role))
	}
	return s.settle(ctx, accountID, r)
}

// ResetOnboarding sends an account back to its first step. Administrative.
func (s *Service) ResetOnboarding(ctx context.Context, accountID ulid.ULID) (res *OnboardingResult, err error) {
	ctx, done := s.start(ctx, "reset_onboarding", accountAttr(accountID))
	defer func() { done(err) }()

	r, err := s.onboarding.Reset(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return resultOf(r), nil
}

func (s *Service) settle(ctx context.Context, accountID ulid.ULID, r *onboarding.Result) (*OnboardingResult, error) {
	res := resultOf(r)
	session, err := s.mint(ctx, accountID)
	if err != nil {
		return nil, err
	}
	res.Session = session
	return res, nil
}

func resultOf(r *onboarding.Result) *OnboardingResult {
	return &OnboardingResult{
		Snapshot:       r.Snapshot,
		Progress:       r.Progress,
		Changed:        r.Changed,
		Completed:      r.Completed,
		ProfileCreated: r.ProfileCreated,
	}
}
