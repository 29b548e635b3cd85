// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package auth

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Password length constraints, counted in characters. The upper bound caps
// hashing cost.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 256
)

// ValidatePassword checks a new password against the length rules.
func ValidatePassword(password string) error {
	if err := validation.Validate(password, validation.Required); err != nil {
		return errutil.WithKind(errutil.KindValidation,
			oops.Code("PASSWORD_REQUIRED").Errorf("password is required"))
	}
	if err := validation.Validate(password, validation.RuneLength(MinPasswordLength, 0)); err != nil {
		return errutil.WithKind(errutil.KindValidation,
			oops.Code("PASSWORD_TOO_SHORT").
				With("min_length", MinPasswordLength).
				Errorf("password must be at least %d characters", MinPasswordLength))
	}
	if err := validation.Validate(password, validation.RuneLength(0, MaxPasswordLength)); err != nil {
		return errutil.WithKind(errutil.KindValidation,
			oops.Code("PASSWORD_TOO_LONG").
				With("max_length", MaxPasswordLength).
				Errorf("password must be at most %d characters", MaxPasswordLength))
	}
	return nil
}
