// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows

import (
	"context"

	"github.com/oklog/ulid/v2"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

// RefreshSession re-mints a session from the stored account.
func (s *Service) RefreshSession(ctx context.Context, token string) (session *auth.Session, err error) {
	ctx, done := s.start(ctx, "refresh_session")
	defer func() { done(err) }()

	session, err = s.sessions.Refresh(ctx, token)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSession("refreshed")
	if session.Drifted {
		s.metrics.RecordSession("drift")
		s.logger.DebugContext(ctx, "session drift corrected", "account_id", session.AccountID.String())
	}
	return session, nil
}

// AwaitSession refreshes token until the stored onboarding status is
// COMPLETED, or just once when wantCompleted is false. If the wait runs out
// the latest session is returned anyway.
func (s *Service) AwaitSession(ctx context.Context, token string, wantCompleted bool) (session *auth.Session, err error) {
	ctx, done := s.start(ctx, "await_session")
	defer func() { done(err) }()

	if !wantCompleted {
		session, err = s.sessions.Refresh(ctx, token)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordSession("refreshed")
		return session, nil
	}

	out, err := s.sessions.AwaitRefresh(ctx, token, func(snap onboarding.Snapshot) bool {
		return snap.Status == onboarding.StatusCompleted
	})
	if err != nil {
		return nil, err
	}
	if out.TimedOut {
		s.metrics.RecordRetryExhausted("session-refresh")
		s.logger.WarnContext(ctx, "session refresh did not observe completion",
			"account_id", out.Value.AccountID.String(),
			"attempts", out.Attempts,
			"status", string(out.Value.Snapshot.Status))
	}
	s.metrics.RecordSession("refreshed")
	return out.Value, nil
}

// Account returns the public view of an account.
func (s *Service) Account(ctx context.Context, accountID ulid.ULID) (*AccountView, error) {
	account, err := s.credentials.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return viewOf(account), nil
}

// Providers lists the identity providers that may sign in.
func (s *Service) Providers() []string {
	return s.links.Enabled()
}
