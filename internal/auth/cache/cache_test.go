// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package cache_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/aptitude/internal/auth"
	"github.com/holomush/aptitude/internal/auth/cache"
	"github.com/holomush/aptitude/internal/auth/mocks"
	"github.com/holomush/aptitude/pkg/errutil"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func ann() *auth.Account {
	return &auth.Account{
		ID:             "01JANN",
		Name:           "Ann",
		School:         "X",
		Phone:          "5551234567",
		PasswordDigest: "$2a$10$digest",
		Scores:         auth.Scores{Science: 7},
		CreatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAccountCache_FindByID(t *testing.T) {
	ctx := context.Background()

	t.Run("loads once then serves from redis", func(t *testing.T) {
		mr, client := newRedis(t)
		repo := mocks.NewMockAccountRepository(t)
		repo.On("FindByID", mock.Anything, "01JANN").Return(ann(), nil).Once()

		c := cache.NewAccountCache(repo, client, time.Minute)

		first, err := c.FindByID(ctx, "01JANN")
		require.NoError(t, err)
		assert.Equal(t, "Ann", first.Name)
		assert.True(t, mr.Exists("aptitude:account:01JANN"))

		second, err := c.FindByID(ctx, "01JANN")
		require.NoError(t, err)
		assert.Equal(t, "Ann", second.Name)
		assert.Equal(t, 7, second.Scores.Science)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	})

	t.Run("never stores the digest", func(t *testing.T) {
		mr, client := newRedis(t)
		repo := mocks.NewMockAccountRepository(t)
		repo.On("FindByID", mock.Anything, "01JANN").Return(ann(), nil).Once()

		c := cache.NewAccountCache(repo, client, time.Minute)
		_, err := c.FindByID(ctx, "01JANN")
		require.NoError(t, err)

		raw, err := mr.Get("aptitude:account:01JANN")
		require.NoError(t, err)
		assert.NotContains(t, raw, "$2a$10$digest")

		cached, err := c.FindByID(ctx, "01JANN")
		require.NoError(t, err)
		assert.Empty(t, cached.PasswordDigest)
	})

	t.Run("entries expire", func(t *testing.T) {
		mr, client := newRedis(t)
		repo := mocks.NewMockAccountRepository(t)
		repo.On("FindByID", mock.Anything, "01JANN").Return(ann(), nil).Twice()

		c := cache.NewAccountCache(repo, client, time.Minute)
		_, err := c.FindByID(ctx, "01JANN")
		require.NoError(t, err)

		mr.FastForward(2 * time.Minute)
		_, err = c.FindByID(ctx, "01JANN")
		require.NoError(t, err)
	})

	t.Run("misses are not cached", func(t *testing.T) {
		mr, client := newRedis(t)
		repo := mocks.NewMockAccountRepository(t)
		repo.On("FindByID", mock.Anything, "01JGONE").Return(nil, auth.ErrNotFound).Twice()

		c := cache.NewAccountCache(repo, client, time.Minute)
		for range 2 {
			_, err := c.FindByID(ctx, "01JGONE")
			assert.ErrorIs(t, err, auth.ErrNotFound)
		}
		assert.False(t, mr.Exists("aptitude:account:01JGONE"))
	})

	t.Run("redis failure falls through to the store", func(t *testing.T) {
		mr, client := newRedis(t)
		repo := mocks.NewMockAccountRepository(t)
		repo.On("FindByID", mock.Anything, "01JANN").Return(ann(), nil).Once()
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))

		require.NoError(t, client.Ping(ctx).Err())
		mr.SetError("ERR simulated outage")
		c := cache.NewAccountCache(repo, client, time.Minute, cache.WithLogger(logger))

		account, err := c.FindByID(ctx, "01JANN")
		require.NoError(t, err)
		assert.Equal(t, "Ann", account.Name)
		assert.Contains(t, logs.String(), "account cache read failed")
	})

	t.Run("undecodable entry is replaced", func(t *testing.T) {
		mr, client := newRedis(t)
		repo := mocks.NewMockAccountRepository(t)
		repo.On("FindByID", mock.Anything, "01JANN").Return(ann(), nil).Once()
		require.NoError(t, mr.Set("aptitude:account:01JANN", "{not json"))

		c := cache.NewAccountCache(repo, client, time.Minute)
		account, err := c.FindByID(ctx, "01JANN")
		require.NoError(t, err)
		assert.Equal(t, "Ann", account.Name)

		raw, err := mr.Get("aptitude:account:01JANN")
		require.NoError(t, err)
		assert.Contains(t, raw, `"name":"Ann"`)
	})
}

func TestAccountCache_PassThrough(t *testing.T) {
	ctx := context.Background()

	t.Run("phone lookups always reach the store", func(t *testing.T) {
		_, client := newRedis(t)
		repo := mocks.NewMockAccountRepository(t)
		repo.On("FindByPhone", mock.Anything, "5551234567").Return(ann(), nil).Twice()

		c := cache.NewAccountCache(repo, client, time.Minute)
		for range 2 {
			account, err := c.FindByPhone(ctx, "5551234567")
			require.NoError(t, err)
			assert.Equal(t, "$2a$10$digest", account.PasswordDigest)
		}
	})

	t.Run("create", func(t *testing.T) {
		_, client := newRedis(t)
		repo := mocks.NewMockAccountRepository(t)
		draft, err := auth.NewAccountDraft("Ann", "X", "5551234567", "digest")
		require.NoError(t, err)
		repo.On("Create", mock.Anything, draft).Return(ann(), nil)

		created, err := cache.NewAccountCache(repo, client, time.Minute).Create(ctx, draft)
		require.NoError(t, err)
		assert.Equal(t, "01JANN", created.ID)
	})

	t.Run("digest update evicts", func(t *testing.T) {
		mr, client := newRedis(t)
		repo := mocks.NewMockAccountRepository(t)
		repo.On("FindByID", mock.Anything, "01JANN").Return(ann(), nil).Once()
		repo.On("UpdatePasswordDigest", mock.Anything, "01JANN", "new").Return(nil)

		c := cache.NewAccountCache(repo, client, time.Minute)
		_, err := c.FindByID(ctx, "01JANN")
		require.NoError(t, err)
		require.True(t, mr.Exists("aptitude:account:01JANN"))

		require.NoError(t, c.UpdatePasswordDigest(ctx, "01JANN", "new"))
		assert.False(t, mr.Exists("aptitude:account:01JANN"))
	})

	t.Run("failed digest update keeps the entry", func(t *testing.T) {
		mr, client := newRedis(t)
		repo := mocks.NewMockAccountRepository(t)
		repo.On("UpdatePasswordDigest", mock.Anything, "01JANN", "new").Return(errors.New("deadlock"))
		require.NoError(t, mr.Set("aptitude:account:01JANN", "{}"))

		err := cache.NewAccountCache(repo, client, time.Minute).UpdatePasswordDigest(ctx, "01JANN", "new")
		require.Error(t, err)
		assert.True(t, mr.Exists("aptitude:account:01JANN"))
	})
}

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	t.Run("connects", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client, err := cache.NewClient(ctx, "redis://"+mr.Addr()+"/0")
		require.NoError(t, err)
		require.NoError(t, client.Close())
	})

	t.Run("requires a url", func(t *testing.T) {
		_, err := cache.NewClient(ctx, "")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CACHE_CONFIG_INVALID")
	})

	t.Run("rejects other schemes", func(t *testing.T) {
		_, err := cache.NewClient(ctx, "http://localhost:6379")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CACHE_CONFIG_INVALID")
	})

	t.Run("unreachable server", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		_, err := cache.NewClient(ctx, "redis://"+addr)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CACHE_CONNECT_FAILED")
	})
}
