// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/flows"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

func TestProviderSignIn_CreatesThenReuses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first, err := h.svc.ProviderSignIn(ctx, auth.ProviderGoogle, "g-1", "ada@example.com")
	require.NoError(t, err)
	assert.True(t, first.IsNewAccount)
	assert.Equal(t, onboarding.StatusPending, first.Session.Snapshot.Status)

	again, err := h.svc.ProviderSignIn(ctx, auth.ProviderGoogle, "g-1", "ada@example.com")
	require.NoError(t, err)
	assert.False(t, again.IsNewAccount)
	assert.Equal(t, first.Session.AccountID, again.Session.AccountID)

	p, err := h.store.Progress().Get(ctx, first.Session.AccountID)
	require.NoError(t, err)
	assert.Equal(t, onboarding.StepWelcome, p.CurrentStep)
	assert.Zero(t, h.ledger.points(first.Session.AccountID, flows.RewardSignup))
}

func TestProviderSignIn_LinksToPasswordAccount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	view := h.signUp(t, "ada@example.com", "secret1")

	res, err := h.svc.ProviderSignIn(ctx, auth.ProviderApple, "a-1", "ADA@example.com")

	require.NoError(t, err)
	assert.False(t, res.IsNewAccount)
	assert.Equal(t, view.ID, res.Session.AccountID)
	_, err = h.svc.SignIn(ctx, "ada@example.com", "secret1")
	assert.NoError(t, err, "password still works after linking")
}

func TestCompleteExternalSignIn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	view := h.signUp(t, "ada@example.com", "secret1")

	res, err := h.svc.CompleteExternalSignIn(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, view.ID, res.Session.AccountID)

	_, err = h.svc.CompleteExternalSignIn(ctx, "ghost@example.com")
	errutil.AssertKind(t, err, errutil.KindNotFound)
	errutil.AssertErrorCode(t, err, "ACCOUNT_NOT_VISIBLE")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.RetryExhausted.WithLabelValues("account-visibility")))
}
