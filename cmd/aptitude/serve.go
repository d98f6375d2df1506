// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/aptitude/internal/auth"
	"github.com/holomush/aptitude/internal/auth/cache"
	"github.com/holomush/aptitude/internal/auth/postgres"
	"github.com/holomush/aptitude/internal/config"
	"github.com/holomush/aptitude/internal/httpapi"
	"github.com/holomush/aptitude/internal/logging"
	"github.com/holomush/aptitude/internal/observability"
	"github.com/holomush/aptitude/internal/store"
)

const serviceName = "aptitude"

// Default values for serve command flags.
const (
	defaultAddr        = ":3000"
	defaultMetricsAddr = "127.0.0.1:9100"
	defaultLogFormat   = "json"
	defaultLogLevel    = "info"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the register, login and me API",
		Long: `Serve the HTTP API. DATABASE_URL and TOKEN_SECRET must be set;
REDIS_URL enables the account cache.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
	addServeFlags(cmd)
	return cmd
}

// addServeFlags registers the flags listed in config.FlagKeys.
func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("addr", defaultAddr, "API listen address")
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaultLogFormat, "log format (json or text)")
	cmd.Flags().String("log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	cmd.Flags().String("hasher", auth.AlgorithmBcrypt, "digest algorithm for new passwords (bcrypt or argon2id)")
	cmd.Flags().Bool("migrate", false, "apply pending migrations before serving")
}

func (d *ServeDeps) withDefaults() {
	if d.DatabaseFactory == nil {
		d.DatabaseFactory = func(ctx context.Context, url string, retries uint64) (Database, error) {
			return store.NewPool(ctx, url, retries)
		}
	}
	if d.MigratorFactory == nil {
		d.MigratorFactory = func(url string) (Migrator, error) {
			return store.NewMigrator(url)
		}
	}
	if d.CacheClientFactory == nil {
		d.CacheClientFactory = func(ctx context.Context, url string) (CacheClient, error) {
			return cache.NewClient(ctx, url)
		}
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.HTTPServerFactory == nil {
		d.HTTPServerFactory = func(addr string, handler http.Handler, readTimeout time.Duration) HTTPServer {
			return httpapi.NewServer(addr, handler, readTimeout)
		}
	}
	if d.LogWriter == nil {
		d.LogWriter = os.Stderr
	}
}

// runServeWithDeps wires the service and serves until ctx ends, a signal
// arrives, or a server fails. If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.withDefaults()

	if err := cfg.RequireServeSecrets(); err != nil {
		return err //nolint:wrapcheck // already coded
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	logger := logging.Setup(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
	}, deps.LogWriter)
	slog.SetDefault(logger)

	logger.Info("starting aptitude",
		"addr", cfg.HTTP.Addr,
		"hasher", cfg.Auth.Hasher,
		"cache", cfg.Secrets.RedisURL != "",
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Database.MigrateOnStart {
		if err := autoMigrate(deps, cfg.Secrets.DatabaseURL); err != nil {
			return err
		}
	}

	db, err := deps.DatabaseFactory(ctx, cfg.Secrets.DatabaseURL, cfg.Database.ConnectRetries)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer db.Close()
	logger.Info("connected to database")

	var accounts auth.AccountRepository = postgres.NewAccountRepository(db)
	if cfg.Secrets.RedisURL != "" {
		client, err := deps.CacheClientFactory(ctx, cfg.Secrets.RedisURL)
		if err != nil {
			return oops.Code("CACHE_CONNECT_FAILED").With("operation", "connect to redis").Wrap(err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("error closing redis client", "error", closeErr)
			}
		}()
		accounts = cache.NewAccountCache(accounts, client, cfg.Cache.AccountTTL, cache.WithLogger(logger))
		logger.Info("account cache enabled", "ttl", cfg.Cache.AccountTTL)
	}

	hasher, err := auth.NewCredentialHasher(cfg.HasherConfig())
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	tokens, err := auth.NewTokenService(cfg.Secrets.TokenSecret, auth.WithIssuer(cfg.Auth.TokenIssuer))
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	validator, err := auth.NewValidator()
	if err != nil {
		return oops.Wrapf(err, "build validator")
	}

	var ready atomic.Bool
	var obsServer ObservabilityServer
	serviceOpts := []auth.ServiceOption{auth.WithLogger(logger)}
	routerOpts := []httpapi.Option{httpapi.WithLogger(logger)}
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load)
		serviceOpts = append(serviceOpts, auth.WithRecorder(obsServer.Metrics()))
		routerOpts = append(routerOpts, httpapi.WithRecorder(obsServer.Metrics()))
	}

	svc, err := auth.NewAuthService(accounts, hasher, tokens, validator, cfg.ServiceConfig(), serviceOpts...)
	if err != nil {
		return oops.Wrapf(err, "build auth service")
	}

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := httpapi.NewRouter(svc, routerOpts...)
	if err != nil {
		return oops.Wrapf(err, "build router")
	}

	if obsServer != nil {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	httpServer := deps.HTTPServerFactory(cfg.HTTP.Addr, router, cfg.HTTP.ReadTimeout)
	httpErrChan, err := httpServer.Start()
	if err != nil {
		stopServers(logger, cfg.HTTP.ShutdownTimeout, obsServer)
		return oops.Code("HTTP_START_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, httpErrChan, "http")
	ready.Store(true)

	cmd.Println("aptitude listening on " + httpServer.Addr())
	logger.Info("aptitude ready", "addr", httpServer.Addr())
	if deps.OnReady != nil {
		deps.OnReady(httpServer.Addr())
	}

	<-ctx.Done()
	logger.Info("shutting down")
	ready.Store(false)

	stopServers(logger, cfg.HTTP.ShutdownTimeout, httpServer, obsServer)
	logger.Info("shutdown complete")
	return nil
}

type stoppable interface {
	Stop(ctx context.Context) error
}

// stopServers stops each non-nil server in order within one timeout.
func stopServers(logger *slog.Logger, timeout time.Duration, servers ...stoppable) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, s := range servers {
		if s == nil {
			continue
		}
		if err := s.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping server", "error", err)
		}
	}
}

// autoMigrate applies pending migrations and closes the migrator.
func autoMigrate(deps *ServeDeps, databaseURL string) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	slog.Info("database migrations applied")
	return nil
}

// monitorServerErrors cancels ctx when a server reports a failure. It
// exits when the channel closes or ctx ends.
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
