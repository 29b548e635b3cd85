// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package web

import (
	"net/http"

	"github.com/nomadiqe/nomadiqe/internal/flows"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
)

func (h *Handler) handleSelectRole(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())
	var req roleRequest
	if !h.decode(w, r, &req) {
		return
	}
	role, err := onboarding.ParseRole(req.Role)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	res, err := h.flows.SelectRole(r.Context(), session.AccountID, role)
	h.writeOnboarding(w, r, res, err)
}

func (h *Handler) handleCompleteStep(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())
	step, err := onboarding.ParseStep(r.PathValue("step"))
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	var req stepRequest
	if onboarding.CarriesData(step) && r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	res, err := h.flows.CompleteStep(r.Context(), session.AccountID, step, req.data())
	h.writeOnboarding(w, r, res, err)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())
	res, err := h.flows.Progress(r.Context(), session.AccountID)
	h.writeOnboarding(w, r, res, err)
}

// writeOnboarding renders an onboarding result, replacing the cookie when
// the change re-minted the session.
func (h *Handler) writeOnboarding(w http.ResponseWriter, r *http.Request, res *flows.OnboardingResult, err error) {
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	if res.Session != nil {
		h.setSessionCookie(w, res.Session)
	}
	writeJSON(w, http.StatusOK, toProgressResponse(res))
}
