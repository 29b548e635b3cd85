// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nomadiqe/nomadiqe/internal/auth"
)

func TestIsLockedOut(t *testing.T) {
	now := time.Now()

	t.Run("nil is not locked", func(t *testing.T) {
		assert.False(t, auth.IsLockedOut(nil, now))
	})

	t.Run("past time is not locked", func(t *testing.T) {
		past := now.Add(-time.Minute)
		assert.False(t, auth.IsLockedOut(&past, now))
	})

	t.Run("future time is locked", func(t *testing.T) {
		future := now.Add(time.Minute)
		assert.True(t, auth.IsLockedOut(&future, now))
	})
}
