// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package notify

import (
	"context"
	"log/slog"
)

// LogSender writes mail to the log instead of delivering it. Bodies are
// logged at debug level only, since they carry secrets.
type LogSender struct {
	renderer *Renderer
	logger   *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(renderer *Renderer, logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{renderer: renderer, logger: logger}
}

// Send renders the message and logs it.
func (s *LogSender) Send(ctx context.Context, recipient string, kind Kind, data Data) error {
	msg, err := s.renderer.Render(recipient, kind, data)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "mail not delivered, log sender active",
		"to", msg.To,
		"kind", string(kind),
		"subject", msg.Subject)
	s.logger.DebugContext(ctx, "mail body", "to", msg.To, "body", msg.Body)
	return nil
}
