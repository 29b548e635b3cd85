// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/notify"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// ErrInvalidCredentials hides whether the email or the password was wrong.
var ErrInvalidCredentials = errutil.WithKind(errutil.KindUnauthorized, errors.New("invalid email or password"))

// SignUp creates a password account at the start of onboarding.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (view *AccountView, err error) {
	ctx, done := s.start(ctx, "signup")
	defer func() { done(err) }()

	if _, err = auth.ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	hash, err := s.credentials.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	account, err := s.credentials.CreateAccount(ctx, in.Email, hash, onboarding.DefaultRole)
	if err != nil {
		return nil, err
	}

	if serr := s.onboarding.Seed(ctx, account.ID, account.Role); serr != nil {
		s.swallow(ctx, "progress", account.ID, serr)
	}
	s.ensureProfile(ctx, account.ID, account.Role)
	s.award(ctx, account.ID, RewardSignup, SignupPoints)

	s.logger.InfoContext(ctx, "account created", "account_id", account.ID.String())
	return viewOf(account), nil
}

// ensureProfile creates the role profile through the onboarding service's
// profile store. Failure is swallowed.
func (s *Service) ensureProfile(ctx context.Context, accountID ulid.ULID, role onboarding.Role) {
	if _, err := s.onboarding.EnsureProfile(ctx, accountID, role); err != nil {
		s.swallow(ctx, "profile", accountID, err)
	}
}

// SignIn checks a password and mints a session.
//
// Unknown emails and wrong passwords are one error. An account that only
// signs in through a provider gets a distinct error naming the provider.
func (s *Service) SignIn(ctx context.Context, email, password string) (res *SignInResult, err error) {
	ctx, done := s.start(ctx, "signin")
	defer func() { done(err) }()

	account, err := s.credentials.VerifyPassword(ctx, email, password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrNoSuchAccount), errors.Is(err, auth.ErrWrongPassword):
		s.logger.DebugContext(ctx, "sign-in rejected", "reason", errutil.KindOf(err).String(), "error", err)
		return nil, oops.Code("INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	case errors.Is(err, auth.ErrNoPasswordSet):
		return nil, s.noPasswordError(ctx, email, err)
	default:
		return nil, err
	}

	session, err := s.mint(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &SignInResult{Session: session}, nil
}

func (s *Service) noPasswordError(ctx context.Context, email string, cause error) error {
	var providers []string
	if account, err := s.credentials.GetByEmail(ctx, email); err == nil {
		if providers, err = s.links.Providers(ctx, account.ID); err != nil {
			s.swallow(ctx, "list-providers", account.ID, err)
		}
	}
	return oops.Code("NO_PASSWORD_SET").
		With("providers", providers).
		Public(noPasswordMessage(providers)).
		Wrap(cause)
}

func noPasswordMessage(providers []string) string {
	via := "a social provider"
	if len(providers) > 0 {
		names := make([]string, len(providers))
		for i, p := range providers {
			names[i] = providerName(p)
		}
		via = strings.Join(names, " or ")
	}
	return "This account signs in with " + via + ". Sign in with " + via +
		", or use \"Forgot password\" to add a password."
}

func providerName(p string) string {
	switch p {
	case auth.ProviderGoogle:
		return "Google"
	case auth.ProviderApple:
		return "Apple"
	case auth.ProviderFacebook:
		return "Facebook"
	}
	if p == "" {
		return p
	}
	return strings.ToUpper(p[:1]) + p[1:]
}

// ForgotPassword starts a password reset. The response is the same for
// unknown emails. An account without a password receives an add-password
// link instead of a reset link.
func (s *Service) ForgotPassword(ctx context.Context, email string) (res *ForgotPasswordResult, err error) {
	ctx, done := s.start(ctx, "forgot_password")
	defer func() { done(err) }()

	normalized, err := auth.ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	generic := &ForgotPasswordResult{Message: GenericResetMessage}

	account, err := s.credentials.GetByEmail(ctx, normalized)
	if errors.Is(err, auth.ErrNotFound) {
		s.vault.Decoy(auth.PurposePasswordReset)
		return generic, nil
	}
	if err != nil {
		return nil, err
	}

	purpose, kind := auth.PurposePasswordReset, notify.KindPasswordReset
	if !account.HasPassword() {
		purpose, kind = auth.PurposeAddPassword, notify.KindAddPassword
	}
	issued, err := s.vault.Issue(ctx, purpose, normalized, 0)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordToken(string(purpose), "issued")
	s.send(ctx, account.ID, kind, issued)

	generic.OAuthOnly = !account.HasPassword() && s.revealOAuthOnly
	return generic, nil
}

// ResetPassword consumes a reset token, replaces the password and signs
// the account in.
func (s *Service) ResetPassword(ctx context.Context, email, token, newPassword string) (res *SignInResult, err error) {
	ctx, done := s.start(ctx, "reset_password")
	defer func() { done(err) }()

	hash, err := s.credentials.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	normalized, err := auth.ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	if err = s.validateToken(ctx, auth.PurposePasswordReset, normalized, token); err != nil {
		return nil, err
	}

	account, err := s.credentials.GetByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if err = s.credentials.ReplacePassword(ctx, account.ID, hash); err != nil {
		return nil, err
	}
	if ierr := s.vault.Invalidate(ctx, auth.PurposePasswordReset, normalized); ierr != nil {
		s.swallow(ctx, "invalidate-tokens", account.ID, ierr)
	}
	s.logger.InfoContext(ctx, "password reset", "account_id", account.ID.String())

	session, err := s.mint(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &SignInResult{Session: session}, nil
}

// RequestAddPassword mails an add-password link to an account that has
// none. The response does not reveal whether that happened.
func (s *Service) RequestAddPassword(ctx context.Context, email string) (ack *Ack, err error) {
	ctx, done := s.start(ctx, "request_add_password")
	defer func() { done(err) }()

	normalized, err := auth.ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	generic := &Ack{Message: GenericResetMessage}

	account, err := s.credentials.GetByEmail(ctx, normalized)
	if errors.Is(err, auth.ErrNotFound) {
		s.vault.Decoy(auth.PurposeAddPassword)
		return generic, nil
	}
	if err != nil {
		return nil, err
	}
	if account.HasPassword() {
		s.vault.Decoy(auth.PurposeAddPassword)
		return generic, nil
	}

	issued, err := s.vault.Issue(ctx, auth.PurposeAddPassword, normalized, 0)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordToken(string(auth.PurposeAddPassword), "issued")
	s.send(ctx, account.ID, notify.KindAddPassword, issued)
	return generic, nil
}

// AddPasswordViaToken consumes an add-password token and sets the first
// password. An account that already has one is a conflict.
func (s *Service) AddPasswordViaToken(ctx context.Context, email, token, password string) (err error) {
	ctx, done := s.start(ctx, "add_password_via_token")
	defer func() { done(err) }()

	hash, err := s.credentials.HashPassword(password)
	if err != nil {
		return err
	}
	normalized, err := auth.ValidateEmail(email)
	if err != nil {
		return err
	}
	if err = s.validateToken(ctx, auth.PurposeAddPassword, normalized, token); err != nil {
		return err
	}

	account, err := s.credentials.GetByEmail(ctx, normalized)
	if err != nil {
		return err
	}
	if err = s.credentials.AttachPassword(ctx, account.ID, hash); err != nil {
		return err
	}
	if ierr := s.vault.Invalidate(ctx, auth.PurposeAddPassword, normalized); ierr != nil {
		s.swallow(ctx, "invalidate-tokens", account.ID, ierr)
	}
	s.logger.InfoContext(ctx, "password added", "account_id", account.ID.String(), "via", "token")
	return nil
}

// AddPassword sets the first password of a signed-in account.
func (s *Service) AddPassword(ctx context.Context, accountID ulid.ULID, password string) (err error) {
	ctx, done := s.start(ctx, "add_password", accountAttr(accountID))
	defer func() { done(err) }()

	hash, err := s.credentials.HashPassword(password)
	if err != nil {
		return err
	}
	if err = s.credentials.AttachPassword(ctx, accountID, hash); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "password added", "account_id", accountID.String(), "via", "session")
	return nil
}

func (s *Service) validateToken(ctx context.Context, purpose auth.Purpose, email, token string) error {
	err := s.vault.Validate(ctx, purpose, email, token)
	switch {
	case err == nil:
		s.metrics.RecordToken(string(purpose), "consumed")
	case errors.Is(err, auth.ErrTokenExpired):
		s.metrics.RecordToken(string(purpose), "expired")
	case errors.Is(err, auth.ErrTokenNotFound):
		s.metrics.RecordToken(string(purpose), "unknown")
	}
	return err
}
