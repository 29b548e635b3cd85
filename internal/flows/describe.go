// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package flows

import (
	"errors"
	"net/http"

	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// PublicError is the part of a flow error that may be shown to a caller.
type PublicError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Describe maps a flow error to its public form. Internal details such as
// storage errors are never included.
func Describe(err error) PublicError {
	public := oops.GetPublic(err, "")

	switch kind := errutil.KindOf(err); kind {
	case errutil.KindValidation:
		return PublicError{Status: http.StatusBadRequest, Code: codeOr(err, "INVALID_INPUT"), Message: or(public, err.Error())}

	case errutil.KindNotFound:
		if errors.Is(err, auth.ErrTokenNotFound) {
			return invalidToken()
		}
		return PublicError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: or(public, "Not found.")}

	case errutil.KindExpired:
		return invalidToken()

	case errutil.KindConflict:
		return PublicError{Status: http.StatusConflict, Code: codeOr(err, "CONFLICT"), Message: or(public, err.Error())}

	case errutil.KindUnauthorized:
		switch {
		case errors.Is(err, auth.ErrAccountLocked):
			return PublicError{
				Status:  http.StatusTooManyRequests,
				Code:    "ACCOUNT_LOCKED",
				Message: "Too many failed attempts. Try again later.",
			}
		case public != "":
			return PublicError{Status: http.StatusUnauthorized, Code: codeOr(err, "UNAUTHORIZED"), Message: public}
		case errors.Is(err, auth.ErrInvalidSession):
			return PublicError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Sign in required."}
		default:
			return PublicError{Status: http.StatusUnauthorized, Code: "INVALID_CREDENTIALS", Message: "Invalid email or password."}
		}

	case errutil.KindTransient:
		return PublicError{
			Status:  http.StatusServiceUnavailable,
			Code:    "SERVICE_UNAVAILABLE",
			Message: "The service is temporarily unavailable. Try again shortly.",
		}

	default:
		return PublicError{Status: http.StatusInternalServerError, Code: "INTERNAL", Message: "Something went wrong."}
	}
}

func invalidToken() PublicError {
	return PublicError{
		Status:  http.StatusBadRequest,
		Code:    "INVALID_OR_EXPIRED_TOKEN",
		Message: "This link or code is invalid or has expired.",
	}
}

func codeOr(err error, fallback string) string {
	if code := errutil.CodeOf(err); code != "" {
		return code
	}
	return fallback
}

func or(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
