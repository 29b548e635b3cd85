// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/nomadiqe/nomadiqe/internal/flows"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

// writeFlowError renders err through flows.Describe. Server-side failures
// are logged with their full context first.
func (h *Handler) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	pub := flows.Describe(err)
	if pub.Status >= http.StatusInternalServerError {
		errutil.LogError(h.logger.With("route", r.Pattern), "request failed", err)
	}
	writeError(w, pub.Status, pub.Code, pub.Message)
}

var errTrailingData = errors.New("extra data after JSON object")

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return io.EOF
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errTrailingData
	}
	return nil
}

// decode reads the request body into dst and validates it, answering 400
// itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body is too large.")
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body.")
		return false
	}
	if v, ok := dst.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "REQUEST_INVALID", err.Error())
			return false
		}
	}
	return true
}
