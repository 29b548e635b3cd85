// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

type sessionKey struct{}

// SessionFrom returns the session RequireSession stored in ctx.
func SessionFrom(ctx context.Context) (*auth.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*auth.Session)
	return s, ok
}

// presentedToken returns the session token from the cookie, falling back
// to a bearer header. fromCookie reports which one was used.
func (h *Handler) presentedToken(r *http.Request) (token string, fromCookie bool) {
	if c, err := r.Cookie(h.cfg.CookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:]), false
	}
	return "", false
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, s *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// RequireSession rejects requests without a valid session. The session is
// re-minted from the stored account; when the presented cookie was stale
// it is replaced in the response.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, fromCookie := h.presentedToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in required.")
			return
		}
		session, err := h.flows.RefreshSession(r.Context(), token)
		if err != nil {
			if fromCookie && errutil.IsKind(err, errutil.KindUnauthorized) {
				h.clearSessionCookie(w)
			}
			h.writeFlowError(w, r, err)
			return
		}
		if fromCookie && session.Drifted {
			h.setSessionCookie(w, session)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

// RequireCompleted admits only sessions whose onboarding is COMPLETED. It
// must run inside RequireSession.
func (h *Handler) RequireCompleted(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := SessionFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in required.")
			return
		}
		if session.Snapshot.Status != onboarding.StatusCompleted {
			writeJSON(w, http.StatusForbidden, onboardingRequired{
				Error: apiError{Code: "ONBOARDING_INCOMPLETE", Message: "Finish onboarding first."},
				Step:  session.Snapshot.Step,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type onboardingRequired struct {
	Error apiError        `json:"error"`
	Step  onboarding.Step `json:"step"`
}
