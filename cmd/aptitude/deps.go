// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/holomush/aptitude/internal/auth/postgres"
	"github.com/holomush/aptitude/internal/observability"
	"github.com/holomush/aptitude/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// DatabaseFactory opens the database and waits for it to answer.
	// Default: store.NewPool
	DatabaseFactory func(ctx context.Context, url string, retries uint64) (Database, error)

	// MigratorFactory opens a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(url string) (Migrator, error)

	// CacheClientFactory connects to redis for the account cache.
	// Default: cache.NewClient
	CacheClientFactory func(ctx context.Context, url string) (CacheClient, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// HTTPServerFactory creates the API server.
	// Default: httpapi.NewServer
	HTTPServerFactory func(addr string, handler http.Handler, readTimeout time.Duration) HTTPServer

	// LogWriter receives the process log. Default: os.Stderr
	LogWriter io.Writer

	// OnReady is called with the API address once requests are accepted.
	OnReady func(addr string)
}

// Database wraps the methods used from *pgxpool.Pool.
type Database interface {
	postgres.DB
	store.Pinger
	Close()
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Status() (store.Status, error)
	Close() error
}

// CacheClient wraps the methods used from *redis.Client.
type CacheClient interface {
	redis.Cmdable
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// HTTPServer wraps the methods used from httpapi.Server.
type HTTPServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Running() bool
}
