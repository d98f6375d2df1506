// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads aptitude's layered configuration.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML
// file, explicitly set command-line flags, then secrets from the
// environment (DATABASE_URL, TOKEN_SECRET, REDIS_URL).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/holomush/aptitude/internal/auth"
)

const redacted = "[REDACTED]"

// Config is the effective configuration of an aptitude process.
type Config struct {
	HTTP     HTTPConfig     `koanf:"http" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" yaml:"metrics"`
	Log      LogConfig      `koanf:"log" yaml:"log"`
	Auth     AuthConfig     `koanf:"auth" yaml:"auth"`
	Database DatabaseConfig `koanf:"database" yaml:"database"`
	Cache    CacheConfig    `koanf:"cache" yaml:"cache"`

	// Secrets come only from the environment.
	Secrets Secrets `koanf:"-" yaml:"secrets"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// MetricsConfig configures the observability listener. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format" yaml:"format"`
	Level  string `koanf:"level" yaml:"level"`
}

// AuthConfig configures hashing, tokens and the per-step bounds.
type AuthConfig struct {
	TokenLifetime time.Duration `koanf:"token_lifetime" yaml:"token_lifetime"`
	TokenIssuer   string        `koanf:"token_issuer" yaml:"token_issuer"`
	Hasher        string        `koanf:"hasher" yaml:"hasher"`
	BcryptCost    int           `koanf:"bcrypt_cost" yaml:"bcrypt_cost"`
	Argon2        Argon2Config  `koanf:"argon2" yaml:"argon2"`
	StoreTimeout  time.Duration `koanf:"store_timeout" yaml:"store_timeout"`
	HashTimeout   time.Duration `koanf:"hash_timeout" yaml:"hash_timeout"`
}

// Argon2Config holds the argon2id cost parameters.
type Argon2Config struct {
	Time    uint32 `koanf:"time" yaml:"time"`
	Memory  uint32 `koanf:"memory" yaml:"memory"`
	Threads uint8  `koanf:"threads" yaml:"threads"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	ConnectRetries uint64 `koanf:"connect_retries" yaml:"connect_retries"`
	MigrateOnStart bool   `koanf:"migrate_on_start" yaml:"migrate_on_start"`
}

// CacheConfig configures the optional redis account cache.
type CacheConfig struct {
	AccountTTL time.Duration `koanf:"account_ttl" yaml:"account_ttl"`
}

// Secrets are read from the environment and never from files or flags.
type Secrets struct {
	DatabaseURL string `env:"DATABASE_URL" yaml:"database_url"`
	TokenSecret string `env:"TOKEN_SECRET" yaml:"token_secret"`
	RedisURL    string `env:"REDIS_URL" yaml:"redis_url"`
}

// Defaults returns the built-in configuration layer.
func Defaults() map[string]any {
	return map[string]any{
		"http.addr":                 ":3000",
		"http.read_timeout":         10 * time.Second,
		"http.shutdown_timeout":     15 * time.Second,
		"metrics.addr":              "127.0.0.1:9100",
		"log.format":                "json",
		"log.level":                 "info",
		"auth.token_lifetime":       auth.DefaultTokenLifetime,
		"auth.token_issuer":         "",
		"auth.hasher":               auth.AlgorithmBcrypt,
		"auth.bcrypt_cost":          auth.DefaultBcryptCost,
		"auth.argon2.time":          auth.DefaultArgon2Params.Time,
		"auth.argon2.memory":        auth.DefaultArgon2Params.Memory,
		"auth.argon2.threads":       auth.DefaultArgon2Params.Threads,
		"auth.store_timeout":        auth.DefaultStoreTimeout,
		"auth.hash_timeout":         auth.DefaultHashTimeout,
		"database.connect_retries":  uint64(5),
		"database.migrate_on_start": false,
		"cache.account_ttl":         5 * time.Minute,
	}
}

// FlagKeys maps command-line flag names to configuration keys. Flags not
// listed here are ignored by Load.
var FlagKeys = map[string]string{
	"addr":         "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"hasher":       "auth.hasher",
	"migrate":      "database.migrate_on_start",
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty), the changed flags in flags (may be nil) and the
// environment.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := FlagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	if err := env.Parse(&cfg.Secrets); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	return &cfg, nil
}

// Validate reports every invalid setting in one CONFIG_INVALID error.
// Secrets are not checked here; see RequireServeSecrets.
func (c *Config) Validate() error {
	var errs []error
	add := func(key, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: "+format, append([]any{key}, args...)...))
	}

	if c.HTTP.Addr == "" {
		add("http.addr", "must not be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		add("http.read_timeout", "must be positive, got %s", c.HTTP.ReadTimeout)
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		add("http.shutdown_timeout", "must be positive, got %s", c.HTTP.ShutdownTimeout)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		add("log.format", "must be json or text, got %q", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Auth.TokenLifetime <= 0 {
		add("auth.token_lifetime", "must be positive, got %s", c.Auth.TokenLifetime)
	}
	if c.Auth.StoreTimeout <= 0 {
		add("auth.store_timeout", "must be positive, got %s", c.Auth.StoreTimeout)
	}
	if c.Auth.HashTimeout <= 0 {
		add("auth.hash_timeout", "must be positive, got %s", c.Auth.HashTimeout)
	}
	if _, err := auth.NewCredentialHasher(c.HasherConfig()); err != nil {
		add("auth.hasher", "%s", oops.GetPublic(err, err.Error()))
	}
	if c.Cache.AccountTTL <= 0 {
		add("cache.account_ttl", "must be positive, got %s", c.Cache.AccountTTL)
	}

	if len(errs) > 0 {
		return oops.Code("CONFIG_INVALID").With("problems", len(errs)).Wrap(errors.Join(errs...))
	}
	return nil
}

// RequireServeSecrets checks the secrets the serve command cannot run without.
func (c *Config) RequireServeSecrets() error {
	var missing []string
	if c.Secrets.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Secrets.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}
	if len(missing) > 0 {
		return oops.Code("CONFIG_INVALID").
			With("missing", missing).
			Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

// HasherConfig converts the auth settings for auth.NewCredentialHasher.
func (c *Config) HasherConfig() auth.HasherConfig {
	return auth.HasherConfig{
		Algorithm:  c.Auth.Hasher,
		BcryptCost: c.Auth.BcryptCost,
		Argon2: auth.Argon2Params{
			Time:    c.Auth.Argon2.Time,
			Memory:  c.Auth.Argon2.Memory,
			Threads: c.Auth.Argon2.Threads,
		},
	}
}

// ServiceConfig converts the auth settings for auth.NewAuthService.
func (c *Config) ServiceConfig() auth.ServiceConfig {
	return auth.ServiceConfig{
		TokenLifetime: c.Auth.TokenLifetime,
		StoreTimeout:  c.Auth.StoreTimeout,
		HashTimeout:   c.Auth.HashTimeout,
	}
}

// Redacted returns a copy with every set secret replaced by a marker.
func (c *Config) Redacted() Config {
	out := *c
	for _, s := range []*string{&out.Secrets.DatabaseURL, &out.Secrets.TokenSecret, &out.Secrets.RedisURL} {
		if *s != "" {
			*s = redacted
		}
	}
	return out
}

// YAML renders the redacted configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yamlv3.Marshal(c.Redacted())
	if err != nil {
		return nil, oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	return out, nil
}
