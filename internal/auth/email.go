// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package auth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// MaxEmailLength is the longest address accepted (RFC 5321 path limit).
const MaxEmailLength = 254

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateEmail normalizes s and checks its shape.
func ValidateEmail(s string) (string, error) {
	email := NormalizeEmail(s)
	if err := validation.Validate(email, validation.Required); err != nil {
		return "", errutil.WithKind(errutil.KindValidation,
			oops.Code("EMAIL_REQUIRED").Errorf("email is required"))
	}
	if err := validation.Validate(email, validation.Length(0, MaxEmailLength), is.Email); err != nil {
		return "", errutil.WithKind(errutil.KindValidation,
			oops.Code("EMAIL_INVALID").
				With("email", email).
				With("rule", err.Error()).
				Errorf("invalid email format"))
	}
	return email, nil
}
