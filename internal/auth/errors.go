// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package auth

import (
	"errors"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errutil.WithKind(errutil.KindNotFound, errors.New("not found"))

// ErrAlreadyExists is returned when a unique key is already taken.
var ErrAlreadyExists = errutil.WithKind(errutil.KindConflict, errors.New("already exists"))
