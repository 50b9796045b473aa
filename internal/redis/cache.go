package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/codewars-bot/internal/config"
	"github.com/codewars-bot/internal/domain"
)

// ProfileSource is the upstream the cache reads through to
type ProfileSource interface {
	Profile(ctx context.Context, username string) (domain.Profile, error)
}

// ProfileCache is a read-through Redis cache in front of the Codewars API.
// Redis failures are logged and fall back to the upstream.
type ProfileCache struct {
	client *redis.Client
	next   ProfileSource
	ttl    time.Duration
	logger zerolog.Logger
}

// NewProfileCache connects to Redis and wraps next
func NewProfileCache(ctx context.Context, cfg *config.RedisConfig, next ProfileSource, logger zerolog.Logger) (*ProfileCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return newProfileCache(client, next, cfg.CacheTTL, logger), nil
}

func newProfileCache(client *redis.Client, next ProfileSource, ttl time.Duration, logger zerolog.Logger) *ProfileCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ProfileCache{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: logger.With().Str("comp", "redis").Logger(),
	}
}

// Close closes the Redis connection
func (c *ProfileCache) Close() error {
	return c.client.Close()
}

// Ping checks the Redis connection
func (c *ProfileCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// profileKey returns the Redis key for a cached profile
func profileKey(username string) string {
	return fmt.Sprintf("codewars:profile:%s", username)
}

// Profile returns a cached profile when fresh, otherwise fetches and caches it
func (c *ProfileCache) Profile(ctx context.Context, username string) (domain.Profile, error) {
	key := profileKey(username)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p domain.Profile
		if err := json.Unmarshal(raw, &p); err == nil {
			c.logger.Debug().Str("user", username).Msg("profile cache hit")
			return p, nil
		}
		c.logger.Warn().Str("user", username).Msg("dropping undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("user", username).Msg("profile cache read failed")
	}

	p, err := c.next.Profile(ctx, username)
	if err != nil {
		return domain.Profile{}, err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return p, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("user", username).Msg("profile cache write failed")
	}
	return p, nil
}
