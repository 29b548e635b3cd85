// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows

import (
	"github.com/oklog/ulid/v2"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

// GenericResetMessage is returned by ForgotPassword and RequestAddPassword
// whatever the account's state, so responses do not reveal which emails
// are registered.
const GenericResetMessage = "If an account exists for this email, we sent instructions to it."

// SignUpInput is the sign-up form.
type SignUpInput struct {
	Email    string
	Password string
}

// AccountView is the public part of an account.
type AccountView struct {
	ID    ulid.ULID       `json:"id"`
	Email string          `json:"email"`
	Role  onboarding.Role `json:"role"`
}

func viewOf(a *auth.Account) *AccountView {
	return &AccountView{ID: a.ID, Email: a.Email, Role: a.Role}
}

// SignInResult is a minted session for a signed-in account.
type SignInResult struct {
	Session *auth.Session
	// IsNewAccount is set by ProviderSignIn when the callback created the account.
	IsNewAccount bool
}

// ForgotPasswordResult acknowledges a reset request.
type ForgotPasswordResult struct {
	Message string
	// OAuthOnly is reported only when disclosure is enabled.
	OAuthOnly bool
}

// Ack is a generic acknowledgement.
type Ack struct {
	Message string
}

// OnboardingResult is the state after an onboarding change, with a session
// re-minted from it.
type OnboardingResult struct {
	Snapshot       onboarding.Snapshot
	Progress       onboarding.Progress
	Changed        bool
	Completed      bool
	ProfileCreated bool
	Session        *auth.Session
}
