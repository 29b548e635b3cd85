// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// instrument bounds every request with the configured timeout and records
// its route and status.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.RequestTimeout)
		defer cancel()
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		began := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		h.metrics.RecordHTTP(route, rec.status)
		h.logger.DebugContext(ctx, "request",
			"route", route,
			"status", rec.status,
			"duration", time.Since(began))
	})
}

// requireAdapter admits requests carrying the adapter shared secret.
func (h *Handler) requireAdapter(next http.Handler) http.Handler {
	want := []byte(h.cfg.AdapterSecret)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(AdapterSecretHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Adapter authentication required.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
