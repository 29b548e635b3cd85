// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package errutil_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want errutil.Kind
	}{
		{"untagged error is transient", base, errutil.KindTransient},
		{"nil is transient", nil, errutil.KindTransient},
		{"tagged error", errutil.WithKind(errutil.KindNotFound, base), errutil.KindNotFound},
		{
			"kind survives oops wrapping",
			oops.Code("OUTER").With("k", "v").Wrap(errutil.WithKind(errutil.KindExpired, base)),
			errutil.KindExpired,
		},
		{
			"kind survives fmt wrapping",
			fmt.Errorf("ctx: %w", errutil.WithKind(errutil.KindConflict, base)),
			errutil.KindConflict,
		},
		{
			"outermost tag wins",
			errutil.WithKind(errutil.KindUnauthorized, oops.Wrap(errutil.WithKind(errutil.KindNotFound, base))),
			errutil.KindUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errutil.KindOf(tt.err))
		})
	}
}

func TestWithKind_NilPassthrough(t *testing.T) {
	assert.NoError(t, errutil.WithKind(errutil.KindValidation, nil))
}

func TestWithKind_PreservesChain(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := errutil.WithKind(errutil.KindNotFound, oops.Code("X_NOT_FOUND").Wrap(sentinel))

	require.ErrorIs(t, err, sentinel)
	assert.Equal(t, "sentinel", err.Error())
	errutil.AssertErrorCode(t, err, "X_NOT_FOUND")
}

func TestIsKind(t *testing.T) {
	err := errutil.WithKind(errutil.KindValidation, errors.New("bad"))
	assert.True(t, errutil.IsKind(err, errutil.KindValidation))
	assert.False(t, errutil.IsKind(err, errutil.KindConflict))
	assert.False(t, errutil.IsKind(nil, errutil.KindTransient))
}

func TestKind_String(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range errutil.Kinds {
		s := k.String()
		assert.NotEqual(t, "UNKNOWN", s)
		assert.False(t, seen[s], "duplicate name %s", s)
		seen[s] = true
	}
	assert.Len(t, seen, 6)
	assert.Equal(t, "UNKNOWN", errutil.Kind(99).String())
}
