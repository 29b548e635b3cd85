// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// Reward reasons and amounts.
const (
	RewardSignup             = "signup"
	RewardOnboardingComplete = "onboarding_complete"

	SignupPoints             = 100
	OnboardingCompletePoints = 200
)

// Rewards awards points once per account and reason.
type Rewards interface {
	// Award returns false when the reason was already awarded.
	Award(ctx context.Context, accountID ulid.ULID, reason string, points int) (bool, error)
}

// NoRewards is the Rewards used when no ledger is configured.
type NoRewards struct{}

// Award does nothing.
func (NoRewards) Award(context.Context, ulid.ULID, string, int) (bool, error) {
	return false, nil
}
