// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/notify"
)

// SendVerificationCode mails a one-time code proving control of an email
// that is about to sign up. Registered emails are rejected.
func (s *Service) SendVerificationCode(ctx context.Context, email string) (ack *Ack, err error) {
	ctx, done := s.start(ctx, "send_verification_code")
	defer func() { done(err) }()

	normalized, err := auth.ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	_, err = s.credentials.GetByEmail(ctx, normalized)
	switch {
	case err == nil:
		return nil, oops.Code("EMAIL_ALREADY_REGISTERED").
			Public("An account with this email already exists. Sign in instead.").
			Wrap(auth.ErrDuplicateEmail)
	case !errors.Is(err, auth.ErrNotFound):
		return nil, err
	}

	issued, err := s.vault.Issue(ctx, auth.PurposeEmailVerification, normalized, 0)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordToken(string(auth.PurposeEmailVerification), "issued")
	s.send(ctx, ulid.ULID{}, notify.KindVerificationCode, issued)
	return &Ack{Message: "Verification code sent."}, nil
}

// VerifyEmailCode consumes a verification code. If the account already
// exists it is marked verified.
func (s *Service) VerifyEmailCode(ctx context.Context, email, code string) (ack *Ack, err error) {
	ctx, done := s.start(ctx, "verify_email_code")
	defer func() { done(err) }()

	normalized, err := auth.ValidateEmail(email)
	if err != nil {
		return nil, err
	}
	if err = s.validateToken(ctx, auth.PurposeEmailVerification, normalized, code); err != nil {
		return nil, err
	}

	account, lookupErr := s.credentials.GetByEmail(ctx, normalized)
	switch {
	case lookupErr == nil:
		if merr := s.credentials.MarkEmailVerified(ctx, account.ID); merr != nil {
			s.swallow(ctx, "mark-verified", account.ID, merr)
		}
	case !errors.Is(lookupErr, auth.ErrNotFound):
		s.swallow(ctx, "mark-verified", ulid.ULID{}, lookupErr)
	}
	return &Ack{Message: "Email verified."}, nil
}
