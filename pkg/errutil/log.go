// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

// Package errutil holds the shared error taxonomy and helpers for logging
// and asserting oops errors.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code, kind and context.
// For standard errors, it logs the error string and kind.
func LogError(logger *slog.Logger, msg string, err error) {
	attrs := []any{"error", err.Error(), "kind", KindOf(err).String()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
	}
	logger.Error(msg, attrs...)
}

// LogWarn is LogError at warning level, for failures that were swallowed.
func LogWarn(logger *slog.Logger, msg string, err error) {
	attrs := []any{"error", err.Error(), "kind", KindOf(err).String()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
	}
	logger.Warn(msg, attrs...)
}

// CodeOf returns the innermost oops code of err, or "" if it has none.
func CodeOf(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}
