// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package web_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnboardingRoutesRequireSession(t *testing.T) {
	s := newServer(t)

	for _, tt := range []struct{ method, path string }{
		{http.MethodPost, "/api/onboarding/role"},
		{http.MethodPost, "/api/onboarding/steps/profile-setup"},
		{http.MethodGet, "/api/onboarding/progress"},
		{http.MethodGet, "/api/me"},
	} {
		rec := s.do(tt.method, tt.path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tt.path)
	}

	rec := s.do(http.MethodGet, "/api/onboarding/progress", nil, withBearer("garbage"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type progressBody struct {
	Role           string   `json:"role"`
	Status         string   `json:"status"`
	CurrentStep    string   `json:"currentStep"`
	CompletedSteps []string `json:"completedSteps"`
	Path           []string `json:"path"`
	Completed      bool     `json:"completed"`
	ProfileCreated bool     `json:"profileCreated"`
	Session        *sessionBody
}

func TestOnboardingJourney(t *testing.T) {
	s := newServer(t)
	cookie := s.signedIn("ada@example.com")

	rec := s.do(http.MethodGet, "/api/onboarding/progress", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	progress := decodeBody[progressBody](t, rec)
	assert.Equal(t, "welcome", progress.CurrentStep)
	assert.Empty(t, progress.CompletedSteps)
	assert.Equal(t, []string{"welcome", "role-selection", "profile-setup", "interest-selection", "complete"}, progress.Path)

	rec = s.do(http.MethodGet, "/api/me", nil, withCookie(cookie))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ONBOARDING_INCOMPLETE")

	rec = s.do(http.MethodPost, "/api/onboarding/role", map[string]string{"role": "host"}, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	progress = decodeBody[progressBody](t, rec)
	assert.Equal(t, "HOST", progress.Role)
	assert.True(t, progress.ProfileCreated)
	cookie = sessionCookie(t, rec)

	rec = s.do(http.MethodPost, "/api/onboarding/steps/profile-setup",
		map[string]string{"fullName": "Ada Lovelace", "username": "ada"}, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	cookie = sessionCookie(t, rec)
	for _, step := range []string{"listing-creation", "collaboration-setup"} {
		rec = s.do(http.MethodPost, "/api/onboarding/steps/"+step, nil, withCookie(cookie))
		require.Equal(t, http.StatusOK, rec.Code, step)
		cookie = sessionCookie(t, rec)
	}
	progress = decodeBody[progressBody](t, rec)
	assert.True(t, progress.Completed)
	assert.Empty(t, progress.CurrentStep)

	rec = s.do(http.MethodGet, "/api/me", nil, withCookie(cookie))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/onboarding/role", map[string]string{"role": "traveler"}, withCookie(cookie))
	assert.Equal(t, http.StatusConflict, rec.Code, "role is frozen after completion")
}

func TestCompleteStep_BadInput(t *testing.T) {
	s := newServer(t)
	cookie := s.signedIn("ada@example.com")

	rec := s.do(http.MethodPost, "/api/onboarding/steps/teleport", nil, withCookie(cookie))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "STEP_INVALID", decodeBody[errorBody](t, rec).Error.Code)

	rec = s.do(http.MethodPost, "/api/onboarding/steps/interest-selection", nil, withCookie(cookie))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "STEP_OUT_OF_ORDER", decodeBody[errorBody](t, rec).Error.Code)

	rec = s.do(http.MethodPost, "/api/onboarding/role", map[string]string{"role": "admin"}, withCookie(cookie))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ROLE_NOT_SELECTABLE", decodeBody[errorBody](t, rec).Error.Code)
}

func TestCompleteStep_ProfileData(t *testing.T) {
	s := newServer(t)
	ada := s.signedIn("ada@example.com")
	bob := s.signedIn("bob@example.com")

	rec := s.do(http.MethodPost, "/api/onboarding/steps/profile-setup", nil, withCookie(ada))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "STEP_DATA_INVALID", decodeBody[errorBody](t, rec).Error.Code)

	rec = s.do(http.MethodPost, "/api/onboarding/steps/profile-setup",
		map[string]string{"fullName": "Ada", "username": "not a handle"}, withCookie(ada))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "STEP_DATA_INVALID", decodeBody[errorBody](t, rec).Error.Code)

	rec = s.do(http.MethodPost, "/api/onboarding/steps/profile-setup",
		map[string]string{"fullName": "Ada Lovelace", "username": "Ada_L"}, withCookie(ada))
	require.Equal(t, http.StatusOK, rec.Code)
	ada = sessionCookie(t, rec)

	rec = s.do(http.MethodPost, "/api/onboarding/steps/profile-setup",
		map[string]string{"fullName": "Bob", "username": "ada_l"}, withCookie(bob))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "USERNAME_TAKEN", decodeBody[errorBody](t, rec).Error.Code)

	rec = s.do(http.MethodPost, "/api/onboarding/steps/interest-selection",
		map[string][]string{"interests": {}}, withCookie(ada))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/onboarding/steps/interest-selection",
		map[string][]string{"interests": {"Hiking", "food"}}, withCookie(ada))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[progressBody](t, rec).Completed)
}

func TestStaleCookieIsReplaced(t *testing.T) {
	s := newServer(t)
	stale := s.signedIn("ada@example.com")

	rec := s.do(http.MethodPost, "/api/onboarding/steps/profile-setup",
		map[string]string{"fullName": "Ada Lovelace", "username": "ada"}, withCookie(stale))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/onboarding/progress", nil, withCookie(stale))
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := sessionCookie(t, rec)
	assert.NotEqual(t, stale.Value, fresh.Value)
}

func TestSessionEndpoint(t *testing.T) {
	s := newServer(t)
	cookie := s.signedIn("ada@example.com")

	rec := s.do(http.MethodGet, "/api/auth/session", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING", decodeBody[sessionBody](t, rec).Onboarding.Status)

	rec = s.do(http.MethodGet, "/api/auth/session?await=completed", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code, "serves the latest session when completion never arrives")
	assert.Equal(t, "PENDING", decodeBody[sessionBody](t, rec).Onboarding.Status)

	rec = s.do(http.MethodGet, "/api/auth/session", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/auth/session", nil, withBearer("garbage"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
