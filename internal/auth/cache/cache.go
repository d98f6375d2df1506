// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package cache provides a Redis read-through cache for account lookups by ID.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/aptitude/internal/auth"
)

// DefaultTTL is how long a cached account stays valid.
const DefaultTTL = 5 * time.Minute

const keyPrefix = "aptitude:account:"

// NewClient parses redisURL (redis://host:port/db) and pings the server.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, oops.Code("CACHE_CONFIG_INVALID").Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("CACHE_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("CACHE_CONNECT_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}

// AccountCache wraps an auth.AccountRepository and caches FindByID results.
// Cached entries never carry the password digest, so callers that verify
// passwords must look accounts up by phone, which always reaches the store.
// Redis failures are logged and the lookup falls through to the store.
type AccountCache struct {
	next   auth.AccountRepository
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures an AccountCache.
type Option func(*AccountCache)

// WithLogger sets the logger used for Redis failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *AccountCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewAccountCache creates a cache in front of next. A non-positive ttl
// selects DefaultTTL.
func NewAccountCache(next auth.AccountRepository, client redis.Cmdable, ttl time.Duration, opts ...Option) *AccountCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &AccountCache{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func accountKey(id string) string {
	return keyPrefix + id
}

// FindByID serves the account from Redis when present, otherwise loads it
// from the wrapped repository and stores it.
func (c *AccountCache) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	data, err := c.client.Get(ctx, accountKey(id)).Bytes()
	switch {
	case err == nil:
		var account auth.Account
		if jsonErr := json.Unmarshal(data, &account); jsonErr == nil {
			return &account, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cached account", "account_id", id)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "account cache read failed", "account_id", id, "error", err)
	}

	account, err := c.next.FindByID(ctx, id)
	if err != nil {
		return nil, err //nolint:wrapcheck // repository errors pass through unchanged
	}

	data, err = json.Marshal(account)
	if err == nil {
		err = c.client.Set(ctx, accountKey(id), data, c.ttl).Err()
	}
	if err != nil {
		c.logger.WarnContext(ctx, "account cache write failed", "account_id", id, "error", err)
	}
	return account, nil
}

// FindByPhone always reads the wrapped repository.
func (c *AccountCache) FindByPhone(ctx context.Context, phone string) (*auth.Account, error) {
	return c.next.FindByPhone(ctx, phone) //nolint:wrapcheck // pass-through
}

// Create always writes the wrapped repository.
func (c *AccountCache) Create(ctx context.Context, draft auth.AccountDraft) (*auth.Account, error) {
	return c.next.Create(ctx, draft) //nolint:wrapcheck // pass-through
}

// UpdatePasswordDigest writes through and evicts the cached entry.
func (c *AccountCache) UpdatePasswordDigest(ctx context.Context, id, digest string) error {
	if err := c.next.UpdatePasswordDigest(ctx, id, digest); err != nil {
		return err //nolint:wrapcheck // pass-through
	}
	c.Invalidate(ctx, id)
	return nil
}

// Invalidate removes the cached entry for id.
func (c *AccountCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, accountKey(id)).Err(); err != nil {
		c.logger.WarnContext(ctx, "account cache eviction failed", "account_id", id, "error", err)
	}
}

var _ auth.AccountRepository = (*AccountCache)(nil)
