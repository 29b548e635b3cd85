// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package notify

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

func fixedRenderer(now time.Time) *Renderer {
	r := NewRenderer("Nomadiqe", "https://nomadiqe.test/")
	r.now = func() time.Time { return now }
	return r
}

func TestRender_VerificationCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := fixedRenderer(now).Render("ana@example.com", KindVerificationCode,
		Data{Secret: "042917", ExpiresAt: now.Add(10 * time.Minute)})
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, "Your Nomadiqe verification code", msg.Subject)
	assert.Contains(t, msg.Body, "042917")
	assert.Contains(t, msg.Body, "10 minutes")
	assert.NotContains(t, msg.Body, "http")
}

func TestRender_LinkKinds(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		kind     Kind
		path     string
		ttl      time.Duration
		validFor string
	}{
		{KindPasswordReset, "/auth/reset-password", time.Hour, "1 hour"},
		{KindAddPassword, "/auth/add-password", 24 * time.Hour, "24 hours"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			msg, err := fixedRenderer(now).Render("a+b@example.com", tt.kind,
				Data{Secret: "ab12", ExpiresAt: now.Add(tt.ttl)})
			require.NoError(t, err)
			assert.Contains(t, msg.Body, tt.validFor)

			var link string
			for _, line := range strings.Split(msg.Body, "\n") {
				if strings.HasPrefix(line, "https://") {
					link = line
				}
			}
			require.NotEmpty(t, link)
			u, err := url.Parse(link)
			require.NoError(t, err)
			assert.Equal(t, "nomadiqe.test", u.Host)
			assert.Equal(t, tt.path, u.Path)
			assert.Equal(t, "ab12", u.Query().Get("token"))
			assert.Equal(t, "a+b@example.com", u.Query().Get("email"))
		})
	}
}

func TestRender_UnknownKind(t *testing.T) {
	_, err := NewRenderer("Nomadiqe", "http://localhost").Render("a@example.com", Kind("welcome"), Data{})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MAIL_KIND_UNKNOWN")
}

func TestValidFor(t *testing.T) {
	assert.Equal(t, "1 minute", validFor(10*time.Second))
	assert.Equal(t, "10 minutes", validFor(10*time.Minute))
	assert.Equal(t, "1 hour", validFor(59*time.Minute))
	assert.Equal(t, "3 hours", validFor(3*time.Hour))
}
