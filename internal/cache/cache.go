package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/griothouse/storymarket/internal/adapter"
)

// Cache defines a read-through cache for API list responses
//
//go:generate mockgen -source=cache.go -destination=../mocks/cache.go -package=mocks -mock_names=Cache=MockCache
type Cache interface {
	// Get loads the cached value for key into dest. Returns false on a miss.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Set stores a value under key with a TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Invalidate removes keys from the cache
	Invalidate(ctx context.Context, keys ...string) error
}

type redisCache struct {
	client adapter.RedisClient
	json   adapter.JSON
}

// NewRedisCache creates a Redis-backed cache
func NewRedisCache(client adapter.RedisClient, jsonAdapter adapter.JSON) Cache {
	return &redisCache{client: client, json: jsonAdapter}
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache key %s: %w", key, err)
	}

	if err := c.json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached value for %s: %w", key, err)
	}
	return true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := c.json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}

func (c *redisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache keys: %w", err)
	}
	return nil
}

// nopCache is used when Redis is not configured; every read misses
type nopCache struct{}

// NewNopCache creates a pass-through cache
func NewNopCache() Cache {
	return &nopCache{}
}

func (nopCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	return false, nil
}

func (nopCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}

func (nopCache) Invalidate(ctx context.Context, keys ...string) error {
	return nil
}
