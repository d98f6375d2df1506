// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

// Package api_test drives the HTTP API against a real PostgreSQL database.
package api_test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"

	"github.com/holomush/aptitude/internal/auth"
	"github.com/holomush/aptitude/internal/auth/cache"
	authpg "github.com/holomush/aptitude/internal/auth/postgres"
	"github.com/holomush/aptitude/internal/httpapi"
	"github.com/holomush/aptitude/internal/store"
)

func TestAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API Integration Suite")
}

// testEnv holds the database, cache and API server shared by the specs.
type testEnv struct {
	ctx       context.Context
	container testcontainers.Container
	pool      *pgxpool.Pool
	redis     *miniredis.Miniredis
	client    *redis.Client
	server    *httptest.Server
}

var env *testEnv

var _ = BeforeSuite(func() {
	gin.SetMode(gin.TestMode)

	var err error
	env, err = setupAPITestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

func setupAPITestEnv() (*testEnv, error) {
	ctx := context.Background()
	e := &testEnv{ctx: ctx}

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("aptitude_test"),
		postgres.WithUsername("aptitude"),
		postgres.WithPassword("aptitude"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}
	e.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		e.cleanup()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		e.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		e.cleanup()
		return nil, err
	}
	_ = migrator.Close()

	e.pool, err = store.NewPool(ctx, connStr, store.DefaultConnectRetries)
	if err != nil {
		e.cleanup()
		return nil, err
	}

	e.redis, err = miniredis.Run()
	if err != nil {
		e.cleanup()
		return nil, err
	}
	e.client, err = cache.NewClient(ctx, "redis://"+e.redis.Addr())
	if err != nil {
		e.cleanup()
		return nil, err
	}

	router, err := newRouter(e)
	if err != nil {
		e.cleanup()
		return nil, err
	}
	e.server = httptest.NewServer(router)
	return e, nil
}

func newRouter(e *testEnv) (*gin.Engine, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenService("integration-secret")
	if err != nil {
		return nil, err
	}
	validator, err := auth.NewValidator()
	if err != nil {
		return nil, err
	}

	accounts := cache.NewAccountCache(authpg.NewAccountRepository(e.pool), e.client, time.Minute, cache.WithLogger(logger))
	svc, err := auth.NewAuthService(accounts, hasher, tokens, validator, auth.ServiceConfig{}, auth.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return httpapi.NewRouter(svc, httpapi.WithLogger(logger))
}

func (e *testEnv) cleanup() {
	if e.server != nil {
		e.server.Close()
	}
	if e.client != nil {
		_ = e.client.Close()
	}
	if e.redis != nil {
		e.redis.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(e.ctx)
	}
}

// resetAccounts empties the accounts table and the cache.
func resetAccounts(ctx context.Context) {
	_, err := env.pool.Exec(ctx, "TRUNCATE accounts")
	Expect(err).NotTo(HaveOccurred())
	env.redis.FlushAll()
}
