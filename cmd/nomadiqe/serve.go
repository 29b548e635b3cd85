// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nomadiqe/nomadiqe/internal/config"
	"github.com/nomadiqe/nomadiqe/internal/logging"
	"github.com/nomadiqe/nomadiqe/internal/notify"
	"github.com/nomadiqe/nomadiqe/internal/observability"
	"github.com/nomadiqe/nomadiqe/internal/web"
	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the account API",
		Long: `Start the HTTP account API and, unless disabled, the metrics and
health listener. Settings come from --config, these flags and the
DATABASE_URL and NOMADIQE_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, nil)
		},
	}
	addServeFlags(cmd)
	return cmd
}

// addServeFlags registers the flags config.Load maps onto config keys.
// Defaults mirror config.Default so an unset flag never masks the file.
func addServeFlags(cmd *cobra.Command) {
	def := config.Default()
	flags := cmd.Flags()
	flags.String("addr", def.HTTP.Addr, "API listen address")
	flags.String("metrics-addr", def.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	flags.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log-format", def.Log.Format, "log format (json or text)")
	flags.String("storage", def.Storage.Driver, "account storage driver (memory or postgres)")
	flags.Bool("auto-migrate", def.Storage.AutoMigrate, "apply pending migrations before serving")
	flags.String("token-store", def.Tokens.Store, "verification token store (memory, postgres or redis; default follows --storage)")
	flags.String("mail-driver", def.Mail.Driver, "mail delivery (log or smtp)")
	flags.String("database-url", "", "PostgreSQL URL (prefer DATABASE_URL)")
	flags.Bool("cookie-secure", def.HTTP.CookieSecure, "mark the session cookie Secure")
}

// runServeWithDeps runs the API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault("nomadiqe", version, cfg.Log.Format, level)

	logger.Info("starting account API",
		"addr", cfg.HTTP.Addr,
		"storage", cfg.Storage.Driver,
		"token_store", cfg.TokenStore(),
		"mail", cfg.Mail.Driver,
	)

	if cfg.Storage.AutoMigrate && cfg.Storage.Driver == config.DriverPostgres {
		if err := deps.MigrationRunner(cfg.Storage.DatabaseURL); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "auto-migrate").Wrap(err)
		}
		logger.Info("migrations applied")
	}

	b, err := deps.BackendOpener(ctx, cfg)
	if err != nil {
		return oops.Code("STORAGE_OPEN_FAILED").With("driver", cfg.Storage.Driver).Wrap(err)
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, b.Ready)
		metrics = obsServer.Metrics()
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	mail := notify.NewAsync(deps.MailerFactory(cfg, logger),
		notify.WithAsyncLogger(logger),
		notify.WithFailureHook(func(kind notify.Kind) {
			observability.RecordSideEffectFailure("mail:" + string(kind))
		}))

	svc, err := newService(cfg, b, mail, metrics, logger)
	if err != nil {
		stopObservability(obsServer)
		return err
	}

	handler := web.NewHandler(svc, web.Config{
		CookieSecure:   cfg.HTTP.CookieSecure,
		AdapterSecret:  cfg.HTTP.AdapterSecret,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	}, web.WithLogger(logger), web.WithMetrics(metrics))

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		stopObservability(obsServer)
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}

	srv := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Account API listening on " + listener.Addr().String())
	logger.Info("account API ready", "addr", listener.Addr().String())

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		runErr = oops.Code("HTTP_SERVE_FAILED").Wrap(err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		errutil.LogWarn(logger, "error stopping account API", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogWarn(logger, "error stopping observability server", err)
		}
	}
	if err := mail.Wait(shutdownCtx); err != nil {
		errutil.LogWarn(logger, "mail deliveries still pending at shutdown", err)
	}

	logger.Info("shutdown complete")
	return runErr
}

func stopObservability(s ObservabilityServer) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		slog.Warn("failed to stop observability server during cleanup", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when an error arrives, the channel closes, or ctx is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
