// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package errutil

import (
	"errors"
)

// Kind is the closed set of failure classes every component reports.
// Callers at the HTTP boundary switch over it exhaustively.
type Kind int

// Failure classes.
const (
	// KindTransient is storage or delivery I/O failure. Errors without an
	// explicit kind are treated as transient.
	KindTransient Kind = iota
	// KindValidation is malformed input rejected before touching storage.
	KindValidation
	// KindNotFound is an absent account, link or token.
	KindNotFound
	// KindExpired is a token past its expiry.
	KindExpired
	// KindConflict is a duplicate email, an existing password, or an
	// illegal state transition.
	KindConflict
	// KindUnauthorized is a failed credential check.
	KindUnauthorized
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{KindTransient, KindValidation, KindNotFound, KindExpired, KindConflict, KindUnauthorized}

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "TRANSIENT"
	case KindValidation:
		return "VALIDATION"
	case KindNotFound:
		return "NOT_FOUND"
	case KindExpired:
		return "EXPIRED"
	case KindConflict:
		return "CONFLICT"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	default:
		return "UNKNOWN"
	}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// WithKind tags err with kind. The outermost tag in a chain wins, so a
// caller can reclassify an error it wraps. Returns nil for a nil err.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the kind attached to err, or KindTransient when none is.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindTransient
}

// IsKind reports whether err is non-nil and classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
