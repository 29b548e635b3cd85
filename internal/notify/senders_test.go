// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

func TestLogSender_KeepsSecretOutOfInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	s := NewLogSender(NewRenderer("Nomadiqe", "http://localhost:3000"), logger)

	err := s.Send(context.Background(), "ana@example.com", KindVerificationCode,
		Data{Secret: "918273", ExpiresAt: time.Now().Add(10 * time.Minute)})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "ana@example.com")
	assert.Contains(t, out, "verification-code")
	assert.NotContains(t, out, "918273")
}

func TestLogSender_RenderError(t *testing.T) {
	s := NewLogSender(NewRenderer("Nomadiqe", "http://localhost"), slog.New(slog.DiscardHandler))
	err := s.Send(context.Background(), "a@example.com", Kind("nope"), Data{})
	errutil.AssertErrorCode(t, err, "MAIL_KIND_UNKNOWN")
}

type capturedMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestSMTP(cfg SMTPConfig, sendErr error) (*SMTPSender, *capturedMail) {
	got := &capturedMail{}
	s := NewSMTPSender(cfg, NewRenderer("Nomadiqe", "https://nomadiqe.test"))
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		*got = capturedMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)}
		return sendErr
	}
	return s, got
}

func TestSMTPSender_Send(t *testing.T) {
	s, got := newTestSMTP(SMTPConfig{
		Host: "smtp.example.com", Port: 587,
		Username: "mailer", Password: "pw",
		From: "noreply@nomadiqe.test",
	}, nil)

	err := s.Send(context.Background(), "ana@example.com", KindPasswordReset,
		Data{Secret: "deadbeef", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", got.addr)
	assert.NotNil(t, got.auth)
	assert.Equal(t, "noreply@nomadiqe.test", got.from)
	assert.Equal(t, []string{"ana@example.com"}, got.to)
	assert.True(t, strings.HasPrefix(got.msg, "From: noreply@nomadiqe.test\r\n"))
	assert.Contains(t, got.msg, "Subject: Reset your Nomadiqe password\r\n")
	assert.Contains(t, got.msg, "token=deadbeef")
	assert.NotContains(t, strings.ReplaceAll(got.msg, "\r\n", ""), "\n")
}

func TestSMTPSender_NoAuthWithoutUsername(t *testing.T) {
	s, got := newTestSMTP(SMTPConfig{Host: "relay", Port: 25, From: "n@x.test"}, nil)
	require.NoError(t, s.Send(context.Background(), "a@example.com", KindVerificationCode, Data{Secret: "1"}))
	assert.Nil(t, got.auth)
}

func TestSMTPSender_Failure(t *testing.T) {
	s, _ := newTestSMTP(SMTPConfig{Host: "relay", Port: 25}, errors.New("421 try later"))
	err := s.Send(context.Background(), "a@example.com", KindAddPassword, Data{Secret: "x"})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MAIL_SEND_FAILED")
	errutil.AssertErrorContext(t, err, "smtp_addr", "relay:25")
	errutil.AssertKind(t, err, errutil.KindTransient)
}

func TestSMTPSender_CanceledContext(t *testing.T) {
	s, got := newTestSMTP(SMTPConfig{Host: "relay", Port: 25}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Send(ctx, "a@example.com", KindVerificationCode, Data{Secret: "1"})
	errutil.AssertErrorCode(t, err, "MAIL_CANCELED")
	assert.Empty(t, got.addr)
}
