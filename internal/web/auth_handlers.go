// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package web

import (
	"net/http"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/flows"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

const passwordAddedMessage = "Password added. You can now sign in with your email and password."

func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	view, err := h.flows.SignUp(r.Context(), flows.SignUpInput{Email: req.Email, Password: req.Password})
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse{Account: view})
}

func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.flows.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	h.writeSession(w, res.Session)
}

func (h *Handler) handleSignOut(w http.ResponseWriter, _ *http.Request) {
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.flows.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forgotResponse{Message: res.Message, OAuthOnly: res.OAuthOnly})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.flows.ResetPassword(r.Context(), req.Email, req.Token, req.NewPassword)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	h.writeSession(w, res.Session)
}

func (h *Handler) handleRequestAddPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	ack, err := h.flows.RequestAddPassword(r.Context(), req.Email)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: ack.Message})
}

func (h *Handler) handleAddPasswordViaToken(w http.ResponseWriter, r *http.Request) {
	var req tokenPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.flows.AddPasswordViaToken(r.Context(), req.Email, req.Token, req.Password); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: passwordAddedMessage})
}

func (h *Handler) handleAddPassword(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())
	var req passwordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.flows.AddPassword(r.Context(), session.AccountID, req.Password); err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: passwordAddedMessage})
}

func (h *Handler) handleSendCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	ack, err := h.flows.SendVerificationCode(r.Context(), req.Email)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: ack.Message})
}

func (h *Handler) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !h.decode(w, r, &req) {
		return
	}
	ack, err := h.flows.VerifyEmailCode(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: ack.Message})
}

// handleSession re-mints the presented session. With ?await=completed it
// waits briefly for onboarding completion to become visible.
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	token, _ := h.presentedToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in required.")
		return
	}
	wantCompleted := r.URL.Query().Get("await") == "completed"
	session, err := h.flows.AwaitSession(r.Context(), token, wantCompleted)
	if err != nil {
		if errutil.IsKind(err, errutil.KindUnauthorized) {
			h.clearSessionCookie(w)
		}
		h.writeFlowError(w, r, err)
		return
	}
	h.writeSession(w, session)
}

func (h *Handler) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.flows.Providers()})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFrom(r.Context())
	view, err := h.flows.Account(r.Context(), session.AccountID)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{Account: view})
}

// handleProviderCallback is called by the identity-linking adapter after a
// provider verified the user. No cookie is set; the adapter owns the
// browser response.
func (h *Handler) handleProviderCallback(w http.ResponseWriter, r *http.Request) {
	var req providerCallbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.flows.ProviderSignIn(r.Context(), req.Provider, req.ProviderAccountID, req.Email)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	body := toSessionResponse(res.Session)
	body.IsNewAccount = res.IsNewAccount
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) handleExternalSession(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.flows.CompleteExternalSignIn(r.Context(), req.Email)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(res.Session))
}

func (h *Handler) writeSession(w http.ResponseWriter, s *auth.Session) {
	h.setSessionCookie(w, s)
	writeJSON(w, http.StatusOK, toSessionResponse(s))
}
