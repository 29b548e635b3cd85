// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/nomadiqe/nomadiqe/internal/config"
	"github.com/nomadiqe/nomadiqe/internal/notify"
	"github.com/nomadiqe/nomadiqe/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendOpener connects the account and token stores.
	// Default: openBackend
	BackendOpener func(ctx context.Context, cfg *config.Config) (*backend, error)

	// MigrationRunner applies pending migrations when auto-migrate is set.
	// Default: runMigrationsUp
	MigrationRunner func(databaseURL string) error

	// MailerFactory creates the outgoing mail sender.
	// Default: newMailer
	MailerFactory func(cfg *config.Config, logger *slog.Logger) notify.Sender

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer with build info
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory creates the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.BackendOpener == nil {
		out.BackendOpener = openBackend
	}
	if out.MigrationRunner == nil {
		out.MigrationRunner = runMigrationsUp
	}
	if out.MailerFactory == nil {
		out.MailerFactory = newMailer
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, observability.WithBuildInfo(version, commit))
		}
	}
	if out.ListenerFactory == nil {
		out.ListenerFactory = net.Listen
	}
	return &out
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
