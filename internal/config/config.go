// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

// Package config loads service configuration from a YAML file, command-line
// flags and a few environment variables, in increasing precedence.
package config

import (
	"slices"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/nomadiqe/nomadiqe/internal/auth"
	"github.com/nomadiqe/nomadiqe/internal/logging"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Mail drivers.
const (
	MailLog  = "log"
	MailSMTP = "smtp"
)

// Config is the complete service configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	HTTP      HTTPConfig      `koanf:"http"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Storage   StorageConfig   `koanf:"storage"`
	Tokens    TokensConfig    `koanf:"tokens"`
	Session   SessionConfig   `koanf:"session"`
	Mail      MailConfig      `koanf:"mail"`
	Flows     FlowsConfig     `koanf:"flows"`
	Providers ProvidersConfig `koanf:"providers"`
}

// LogConfig selects the log format and level.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr           string        `koanf:"addr"`
	CookieSecure   bool          `koanf:"cookie_secure"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes"`
	AdapterSecret  string        `koanf:"adapter_secret"`
}

// MetricsConfig configures the metrics and health listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// StorageConfig selects where accounts live.
type StorageConfig struct {
	Driver      string `koanf:"driver"`
	DatabaseURL string `koanf:"database_url"`
	AutoMigrate bool   `koanf:"auto_migrate"`
	MaxConns    int32  `koanf:"max_conns"`
}

// TokensConfig selects where verification tokens live. An empty Store
// follows Storage.Driver.
type TokensConfig struct {
	Store string      `koanf:"store"`
	Redis RedisConfig `koanf:"redis"`
}

// RedisConfig addresses the Redis token store.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Grace    time.Duration `koanf:"grace"`
}

// SessionConfig configures session tokens.
type SessionConfig struct {
	Secret string        `koanf:"secret"`
	TTL    time.Duration `koanf:"ttl"`
}

// MailConfig configures outgoing mail.
type MailConfig struct {
	Driver  string     `koanf:"driver"`
	AppName string     `koanf:"app_name"`
	BaseURL string     `koanf:"base_url"`
	SMTP    SMTPConfig `koanf:"smtp"`
}

// SMTPConfig addresses the SMTP relay.
type SMTPConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`
}

// FlowsConfig toggles flow behavior.
type FlowsConfig struct {
	// RevealOAuthOnly tells forgot-password callers that an account has no
	// password. Off by default since it discloses registration.
	RevealOAuthOnly bool `koanf:"reveal_oauth_only"`
}

// ProvidersConfig lists the enabled identity providers.
type ProvidersConfig struct {
	Enabled []string `koanf:"enabled"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Log:     LogConfig{Level: "info", Format: "json"},
		HTTP:    HTTPConfig{Addr: ":8080", RequestTimeout: 15 * time.Second, MaxBodyBytes: 64 << 10},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Storage: StorageConfig{Driver: DriverPostgres, MaxConns: 10},
		Tokens:  TokensConfig{Redis: RedisConfig{Addr: "localhost:6379", Grace: 24 * time.Hour}},
		Session: SessionConfig{TTL: auth.DefaultSessionTTL},
		Mail: MailConfig{
			Driver:  MailLog,
			AppName: "Nomadiqe",
			BaseURL: "http://localhost:3000",
			SMTP:    SMTPConfig{Port: 587},
		},
		Providers: ProvidersConfig{Enabled: slices.Clone(auth.DefaultProviders)},
	}
}

// envOverrides maps environment variables to config keys. Secrets are
// expected here rather than in the file.
var envOverrides = []struct{ env, key string }{
	{"DATABASE_URL", "storage.database_url"},
	{"NOMADIQE_SESSION_SECRET", "session.secret"},
	{"NOMADIQE_SMTP_PASSWORD", "mail.smtp.password"},
	{"NOMADIQE_ADAPTER_SECRET", "http.adapter_secret"},
	{"NOMADIQE_REDIS_PASSWORD", "tokens.redis.password"},
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"addr":          "http.addr",
	"metrics-addr":  "metrics.addr",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"storage":       "storage.driver",
	"auto-migrate":  "storage.auto_migrate",
	"token-store":   "tokens.store",
	"mail-driver":   "mail.driver",
	"database-url":  "storage.database_url",
	"cookie-secure": "http.cookie_secure",
}

// Load reads path (optional), then the flags in fs that map to config keys,
// then the environment through getenv. The result is not validated.
func Load(path string, fs *pflag.FlagSet, getenv func(string) string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if getenv != nil {
		for _, o := range envOverrides {
			if v := getenv(o.env); v != "" {
				if err := k.Set(o.key, v); err != nil {
					return nil, oops.Code("CONFIG_ENV_FAILED").With("env", o.env).Wrap(err)
				}
			}
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return &cfg, nil
}

// TokenStore returns the effective token store driver.
func (c *Config) TokenStore() string {
	if c.Tokens.Store != "" {
		return c.Tokens.Store
	}
	return c.Storage.Driver
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	invalid := func(key string, value any, format string, args ...any) error {
		return oops.Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf(format, args...)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level, "log.level must be debug, info, warn or error")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", c.Log.Format, "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", c.HTTP.Addr, "http.addr is required")
	}
	if c.HTTP.AdapterSecret != "" && len(c.HTTP.AdapterSecret) < 16 {
		return invalid("http.adapter_secret", "[REDACTED]", "http.adapter_secret must be at least 16 bytes")
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return invalid("storage.database_url", "", "DATABASE_URL is required for the postgres driver")
		}
	default:
		return invalid("storage.driver", c.Storage.Driver, "storage.driver must be 'memory' or 'postgres', got %q", c.Storage.Driver)
	}

	switch store := c.TokenStore(); store {
	case DriverMemory:
		if c.Storage.Driver != DriverMemory {
			return invalid("tokens.store", store, "tokens.store 'memory' requires storage.driver 'memory'")
		}
	case DriverPostgres:
		if c.Storage.Driver != DriverPostgres {
			return invalid("tokens.store", store, "tokens.store 'postgres' requires storage.driver 'postgres'")
		}
	case DriverRedis:
		if c.Tokens.Redis.Addr == "" {
			return invalid("tokens.redis.addr", "", "tokens.redis.addr is required for the redis token store")
		}
	default:
		return invalid("tokens.store", store, "tokens.store must be 'memory', 'postgres' or 'redis', got %q", store)
	}

	if len(c.Session.Secret) < auth.MinSessionSecretLength {
		return invalid("session.secret", "[REDACTED]",
			"NOMADIQE_SESSION_SECRET must be at least %d bytes", auth.MinSessionSecretLength)
	}
	if c.Session.TTL <= 0 {
		return invalid("session.ttl", c.Session.TTL, "session.ttl must be positive")
	}

	switch c.Mail.Driver {
	case MailLog:
	case MailSMTP:
		if c.Mail.SMTP.Host == "" || c.Mail.SMTP.From == "" {
			return invalid("mail.smtp", c.Mail.SMTP.Host, "mail.smtp.host and mail.smtp.from are required for the smtp driver")
		}
	default:
		return invalid("mail.driver", c.Mail.Driver, "mail.driver must be 'log' or 'smtp', got %q", c.Mail.Driver)
	}

	for _, p := range c.Providers.Enabled {
		if !slices.Contains(auth.DefaultProviders, p) {
			return invalid("providers.enabled", p, "unknown identity provider %q", p)
		}
	}
	return nil
}
