// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/auth/memory"
	"github.com/nomadiqe/nomadiqe/internal/auth/postgres"
	authredis "github.com/nomadiqe/nomadiqe/internal/auth/redis"
	"github.com/nomadiqe/nomadiqe/internal/config"
	"github.com/nomadiqe/nomadiqe/internal/flows"
	"github.com/nomadiqe/nomadiqe/internal/notify"
	"github.com/nomadiqe/nomadiqe/internal/observability"
	"github.com/nomadiqe/nomadiqe/internal/onboarding"
	"github.com/nomadiqe/nomadiqe/internal/store"
)

const readinessTimeout = 2 * time.Second

// backend holds the repositories selected by the storage configuration.
type backend struct {
	accounts auth.AccountRepository
	links    auth.IdentityLinkRepository
	tokens   auth.VerificationTokenRepository
	progress onboarding.ProgressRepository
	profiles onboarding.ProfileRepository
	rewards  flows.Rewards

	checks  []func(ctx context.Context) error
	closers []func()
}

// Ready returns the first failing store check, or nil when every remote
// store answers.
func (b *backend) Ready(ctx context.Context) error {
	for _, check := range b.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

func pingRedis(ctx context.Context, client goredis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return oops.Code("TOKEN_STORE_UNHEALTHY").Wrap(err)
	}
	return nil
}

// openBackend connects the stores named by cfg. The config is expected to be
// validated, so driver combinations are not rechecked here.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}
	var mem *memory.Store

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		mem = memory.New()
		b.accounts = mem.Accounts()
		b.links = mem.Links()
		b.progress = mem.Progress()
		b.profiles = mem.Profiles()
		b.rewards = flows.NoRewards{}
	case config.DriverPostgres:
		pool, err := store.NewPool(ctx, cfg.Storage.DatabaseURL, store.PoolOptions{MaxConns: cfg.Storage.MaxConns})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		b.checks = append(b.checks, func(ctx context.Context) error {
			return store.Healthy(ctx, pool, readinessTimeout)
		})
		b.accounts = postgres.NewAccountRepository(pool)
		b.links = postgres.NewLinkRepository(pool)
		b.progress = postgres.NewProgressRepository(pool)
		b.profiles = postgres.NewProfileRepository(pool)
		b.rewards = postgres.NewPointsLedger(pool)
		if cfg.TokenStore() == config.DriverPostgres {
			b.tokens = postgres.NewTokenRepository(pool)
		}
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "storage.driver").
			Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}

	switch cfg.TokenStore() {
	case config.DriverMemory:
		if mem == nil {
			b.Close()
			return nil, oops.Code("CONFIG_INVALID").With("key", "tokens.store").
				Errorf("the memory token store requires the memory storage driver")
		}
		b.tokens = mem.Tokens()
	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Tokens.Redis.Addr,
			Password: cfg.Tokens.Redis.Password,
			DB:       cfg.Tokens.Redis.DB,
		})
		b.closers = append(b.closers, func() {
			if err := client.Close(); err != nil {
				slog.Debug("error closing redis client", "error", err)
			}
		})
		pingCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			b.Close()
			return nil, oops.Code("TOKEN_STORE_UNAVAILABLE").With("addr", cfg.Tokens.Redis.Addr).Wrap(err)
		}
		b.checks = append(b.checks, func(ctx context.Context) error {
			return pingRedis(ctx, client)
		})
		b.tokens = authredis.NewTokenRepository(client, authredis.WithGrace(cfg.Tokens.Redis.Grace))
	}

	if b.tokens == nil {
		b.Close()
		return nil, oops.Code("CONFIG_INVALID").With("key", "tokens.store").
			Errorf("unsupported token store %q", cfg.TokenStore())
	}
	return b, nil
}

// newService composes the account flows over b.
func newService(cfg *config.Config, b *backend, mail notify.Sender, metrics *observability.Metrics, logger *slog.Logger) (*flows.Service, error) {
	creds := auth.NewCredentialStore(b.accounts, auth.NewArgon2idHasher(), auth.WithCredentialLogger(logger))
	vault := auth.NewTokenVault(b.tokens)
	links := auth.NewLinkRegistry(b.accounts, b.links,
		auth.WithProviders(cfg.Providers.Enabled...),
		auth.WithLinkLogger(logger))
	sessions, err := auth.NewSessionIssuer(creds, b.progress, []byte(cfg.Session.Secret),
		auth.WithSessionTTL(cfg.Session.TTL),
		auth.WithSessionLogger(logger))
	if err != nil {
		return nil, err
	}
	ob := onboarding.NewService(creds, b.progress, b.profiles, onboarding.WithLogger(logger))

	return flows.New(flows.Deps{
		Credentials: creds,
		Vault:       vault,
		Links:       links,
		Sessions:    sessions,
		Onboarding:  ob,
		Mail:        mail,
		Rewards:     b.rewards,
	},
		flows.WithLogger(logger),
		flows.WithMetrics(metrics),
		flows.WithRevealOAuthOnly(cfg.Flows.RevealOAuthOnly),
	), nil
}

// newMailer returns the configured delivery backend.
func newMailer(cfg *config.Config, logger *slog.Logger) notify.Sender {
	renderer := notify.NewRenderer(cfg.Mail.AppName, cfg.Mail.BaseURL)
	if cfg.Mail.Driver == config.MailSMTP {
		return notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			From:     cfg.Mail.SMTP.From,
		}, renderer)
	}
	return notify.NewLogSender(renderer, logger)
}
