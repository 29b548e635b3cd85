// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

// Package notify renders and delivers transactional account mail.
package notify

import (
	"context"
	"time"
)

// Kind selects the message template.
type Kind string

// Message kinds.
const (
	KindVerificationCode Kind = "verification-code"
	KindPasswordReset    Kind = "password-reset"
	KindAddPassword      Kind = "add-password"
)

// Data fills a template. Secret is the code or link token; it is never logged.
type Data struct {
	Secret    string
	ExpiresAt time.Time
}

// Sender delivers one message of kind to recipient.
type Sender interface {
	Send(ctx context.Context, recipient string, kind Kind, data Data) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, recipient string, kind Kind, data Data) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, recipient string, kind Kind, data Data) error {
	return f(ctx, recipient, kind, data)
}
