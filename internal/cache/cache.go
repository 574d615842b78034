/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-backed cache for per-device display
// resolutions. Display endpoints are polled by every TV on a short
// interval; the resolution itself is a handful of queries, so a short
// TTL keeps the database quiet without letting stale content linger.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/heimdall_signage/internal/events"
	"github.com/friendsincode/heimdall_signage/internal/telemetry"
)

// DefaultDisplayTTL bounds staleness between content mutations and what
// a polling TV sees, in the worst case where invalidation is missed.
const DefaultDisplayTTL = 10 * time.Second

const keyDisplay = "heimdall:cache:display:" // + device_id

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DisplayTTL time.Duration

	// DisableOnError disables caching after a Redis failure instead of
	// failing display requests.
	DisableOnError bool
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		DisplayTTL:     DefaultDisplayTTL,
		DisableOnError: true,
	}
}

// Cache provides Redis-backed caching with graceful fallback.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // circuit breaker state
}

// New creates a cache instance. An unreachable Redis yields a disabled
// cache, not an error: caching is an optimization, never a dependency.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.DisplayTTL == 0 {
		cfg.DisplayTTL = DefaultDisplayTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		return &Cache{
			logger:   logger.With().Str("component", "cache").Logger(),
			config:   cfg,
			disabled: true,
		}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
		config: cfg,
	}, nil
}

// Disabled returns a cache that never stores anything, for deployments
// without Redis.
func Disabled(logger zerolog.Logger) *Cache {
	return &Cache{
		logger:   logger.With().Str("component", "cache").Logger(),
		disabled: true,
	}
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

func (c *Cache) deletePattern(ctx context.Context, pattern string) error {
	if !c.IsAvailable() {
		return nil
	}

	// SCAN rather than KEYS; the key space is small but unbounded.
	var cursor uint64
	for {
		keys, nextCursor, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			c.handleError(err, "scan")
			return err
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				c.handleError(err, "delete_batch")
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return nil
}

// CachedDisplay is the cached per-device resolution. Empty reports a
// cached "nothing to show", distinct from a cache miss.
type CachedDisplay struct {
	Empty    bool            `json:"empty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Resolved time.Time       `json:"resolved"`
}

// GetDisplay retrieves the cached resolution for a device.
func (c *Cache) GetDisplay(ctx context.Context, deviceID string) (*CachedDisplay, bool) {
	var display CachedDisplay
	found, err := c.get(ctx, keyDisplay+deviceID, &display)
	if err != nil || !found {
		telemetry.CacheMissesTotal.Inc()
		return nil, false
	}
	telemetry.CacheHitsTotal.Inc()
	c.logger.Debug().Str("device_id", deviceID).Msg("display cache hit")
	return &display, true
}

// SetDisplay caches the resolution for a device.
func (c *Cache) SetDisplay(ctx context.Context, deviceID string, display *CachedDisplay) error {
	c.logger.Debug().Str("device_id", deviceID).Msg("caching display resolution")
	return c.set(ctx, keyDisplay+deviceID, display, c.config.DisplayTTL)
}

// InvalidateDisplays drops every per-device resolution. Any content
// mutation can change what any device shows, so invalidation is
// wholesale.
func (c *Cache) InvalidateDisplays(ctx context.Context) error {
	c.logger.Debug().Msg("invalidating display caches")
	return c.deletePattern(ctx, keyDisplay+"*")
}

// WatchInvalidations drops display caches whenever content changes.
// Runs until ctx is cancelled.
func (c *Cache) WatchInvalidations(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(events.EventDisplayInvalidated)
	defer bus.Unsubscribe(events.EventDisplayInvalidated, sub)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub:
			if !ok {
				return
			}
			if err := c.InvalidateDisplays(ctx); err != nil {
				c.logger.Debug().Err(err).Msg("display invalidation failed")
			}
		}
	}
}
