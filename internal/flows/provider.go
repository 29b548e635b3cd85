// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// ProviderSignIn handles a verified provider callback: it links the
// provider identity, creating the account on first sight, and mints a
// session.
func (s *Service) ProviderSignIn(ctx context.Context, provider, providerAccountID, email string) (res *SignInResult, err error) {
	ctx, done := s.start(ctx, "provider_signin", attribute.String("provider", provider))
	defer func() { done(err) }()

	linked, err := s.links.LinkOrCreate(ctx, provider, providerAccountID, email)
	if err != nil {
		return nil, err
	}
	if linked.IsNewAccount {
		if serr := s.onboarding.Seed(ctx, linked.Account.ID, linked.Account.Role); serr != nil {
			s.swallow(ctx, "progress", linked.Account.ID, serr)
		}
	}
	if linked.Linked {
		s.logger.InfoContext(ctx, "provider linked",
			"account_id", linked.Account.ID.String(),
			"provider", provider,
			"new_account", linked.IsNewAccount)
	}

	session, err := s.mint(ctx, linked.Account.ID)
	if err != nil {
		return nil, err
	}
	return &SignInResult{Session: session, IsNewAccount: linked.IsNewAccount}, nil
}

// CompleteExternalSignIn mints a session for an account an external adapter
// has just written. It waits briefly for the account to become visible.
func (s *Service) CompleteExternalSignIn(ctx context.Context, email string) (res *SignInResult, err error) {
	ctx, done := s.start(ctx, "complete_external_signin")
	defer func() { done(err) }()

	account, err := s.links.AwaitAccount(ctx, email)
	if err != nil {
		if errutil.IsKind(err, errutil.KindNotFound) {
			s.metrics.RecordRetryExhausted("account-visibility")
		}
		return nil, err
	}
	session, err := s.mint(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return &SignInResult{Session: session}, nil
}
