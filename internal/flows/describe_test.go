// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/flows"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{
			name:   "validation keeps its code",
			err:    errutil.WithKind(errutil.KindValidation, oops.Code("EMAIL_INVALID").Errorf("invalid email format")),
			status: http.StatusBadRequest,
			code:   "EMAIL_INVALID",
		},
		{
			name:   "unknown token",
			err:    oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrTokenNotFound),
			status: http.StatusBadRequest,
			code:   "INVALID_OR_EXPIRED_TOKEN",
		},
		{
			name:   "missing account",
			err:    oops.Code("ACCOUNT_NOT_VISIBLE").Wrap(auth.ErrNotFound),
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "conflict",
			err:    oops.Code("EMAIL_TAKEN").Wrap(auth.ErrDuplicateEmail),
			status: http.StatusConflict,
			code:   "EMAIL_TAKEN",
		},
		{
			name:   "locked",
			err:    oops.Code("ACCOUNT_LOCKED").Wrap(auth.ErrAccountLocked),
			status: http.StatusTooManyRequests,
			code:   "ACCOUNT_LOCKED",
		},
		{
			name:   "invalid session",
			err:    oops.Code("SESSION_EXPIRED").Wrap(auth.ErrInvalidSession),
			status: http.StatusUnauthorized,
			code:   "UNAUTHORIZED",
		},
		{
			name:   "storage failure",
			err:    oops.Code("ACCOUNT_CREATE_FAILED").Wrap(errors.New("connection refused")),
			status: http.StatusServiceUnavailable,
			code:   "SERVICE_UNAVAILABLE",
		},
		{
			name:   "canceled request",
			err:    context.Canceled,
			status: http.StatusServiceUnavailable,
			code:   "SERVICE_UNAVAILABLE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := flows.Describe(tt.err)
			assert.Equal(t, tt.status, pub.Status)
			assert.Equal(t, tt.code, pub.Code)
			assert.NotEmpty(t, pub.Message)
		})
	}
}

func TestDescribe_HidesInternalMessages(t *testing.T) {
	err := oops.Code("ACCOUNT_CREATE_FAILED").Wrap(errors.New("pq: password authentication failed for user app"))

	pub := flows.Describe(err)

	assert.NotContains(t, pub.Message, "pq:")
}

func TestDescribe_CoversEveryKind(t *testing.T) {
	for _, kind := range errutil.Kinds {
		pub := flows.Describe(errutil.WithKind(kind, errors.New("x")))
		assert.NotEqual(t, http.StatusInternalServerError, pub.Status, kind.String())
	}
}
