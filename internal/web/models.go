// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package web

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/flows"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

// Request bodies validate their shape before reaching the flows, which
// apply the domain rules.

const maxSecretLength = 512

func emailField(email *string) *validation.FieldRules {
	return validation.Field(email,
		validation.Required,
		validation.Length(0, auth.MaxEmailLength),
		validation.By(func(v any) error {
			s, _ := v.(string)
			return validation.Validate(auth.NormalizeEmail(s), is.Email)
		}))
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r credentialsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		emailField(&r.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, auth.MaxPasswordLength)),
	)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r, emailField(&r.Email))
}

type resetRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (r resetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		emailField(&r.Email),
		validation.Field(&r.Token, validation.Required, validation.Length(1, maxSecretLength)),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(1, auth.MaxPasswordLength)),
	)
}

type tokenPasswordRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r tokenPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		emailField(&r.Email),
		validation.Field(&r.Token, validation.Required, validation.Length(1, maxSecretLength)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, auth.MaxPasswordLength)),
	)
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (r passwordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(1, auth.MaxPasswordLength)),
	)
}

type codeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r codeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		emailField(&r.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(1, maxSecretLength), is.Digit),
	)
}

type roleRequest struct {
	Role string `json:"role"`
}

func (r roleRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Role, validation.Required))
}

type stepRequest struct {
	FullName  string   `json:"fullName"`
	Username  string   `json:"username"`
	Interests []string `json:"interests"`
}

func (r stepRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FullName, validation.Length(0, onboarding.MaxFullNameLength)),
		validation.Field(&r.Username, validation.Length(0, onboarding.MaxUsernameLength)),
		validation.Field(&r.Interests, validation.Length(0, onboarding.MaxInterests)),
	)
}

func (r stepRequest) data() onboarding.StepData {
	return onboarding.StepData{FullName: r.FullName, Username: r.Username, Interests: r.Interests}
}

type providerCallbackRequest struct {
	Provider          string `json:"provider"`
	ProviderAccountID string `json:"providerAccountId"`
	Email             string `json:"email"`
}

func (r providerCallbackRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Provider, validation.Required),
		validation.Field(&r.ProviderAccountID, validation.Required, validation.Length(1, 255)),
	)
}

type messageResponse struct {
	Message string `json:"message"`
}

type forgotResponse struct {
	Message   string `json:"message"`
	OAuthOnly bool   `json:"isOAuthOnly,omitempty"`
}

type accountResponse struct {
	Account *flows.AccountView `json:"account"`
}

type onboardingState struct {
	Status onboarding.Status `json:"status"`
	Step   onboarding.Step   `json:"step,omitempty"`
}

type sessionResponse struct {
	Token        string             `json:"token"`
	ExpiresAt    time.Time          `json:"expiresAt"`
	Account      *flows.AccountView `json:"account"`
	Onboarding   onboardingState    `json:"onboarding"`
	IsNewAccount bool               `json:"isNewAccount,omitempty"`
}

func toSessionResponse(s *auth.Session) sessionResponse {
	return sessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		Account: &flows.AccountView{
			ID:    s.AccountID,
			Email: s.Email,
			Role:  s.Snapshot.Role,
		},
		Onboarding: onboardingState{Status: s.Snapshot.Status, Step: s.Snapshot.Step},
	}
}

type progressResponse struct {
	Role           onboarding.Role   `json:"role"`
	Status         onboarding.Status `json:"status"`
	CurrentStep    onboarding.Step   `json:"currentStep,omitempty"`
	CompletedSteps []onboarding.Step `json:"completedSteps"`
	Path           []onboarding.Step `json:"path"`
	Completed      bool              `json:"completed"`
	ProfileCreated bool              `json:"profileCreated,omitempty"`
	Session        *sessionResponse  `json:"session,omitempty"`
}

func toProgressResponse(res *flows.OnboardingResult) progressResponse {
	completed := res.Progress.CompletedSteps
	if completed == nil {
		completed = []onboarding.Step{}
	}
	out := progressResponse{
		Role:           res.Snapshot.Role,
		Status:         res.Snapshot.Status,
		CurrentStep:    res.Snapshot.Step,
		CompletedSteps: completed,
		Path:           onboarding.Path(res.Snapshot.Role),
		Completed:      res.Snapshot.Status == onboarding.StatusCompleted,
		ProfileCreated: res.ProfileCreated,
	}
	if res.Session != nil {
		s := toSessionResponse(res.Session)
		out.Session = &s
	}
	return out
}
