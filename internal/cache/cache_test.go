package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/griothouse/storymarket/internal/adapter"
)

type fakeRedisClient struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *fakeRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.values[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var removed int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			removed++
		}
	}
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedisClient) NewRateLimiter() adapter.RedisRateLimiter {
	return &fakeRateLimiter{}
}

func (f *fakeRedisClient) Close() error { return nil }

type fakeRateLimiter struct{}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	return &redis_rate.Result{Allowed: 1}, nil
}

type cachedList struct {
	Items []string `json:"items"`
	Total int64    `json:"total"`
}

func TestRedisCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedisClient()
	c := NewRedisCache(rdb, adapter.NewJSON())

	var missed cachedList
	hit, err := c.Get(ctx, "stories:page=1", &missed)
	require.NoError(t, err)
	assert.False(t, hit)

	stored := cachedList{Items: []string{"a", "b"}, Total: 2}
	require.NoError(t, c.Set(ctx, "stories:page=1", stored, time.Minute))
	assert.Equal(t, time.Minute, rdb.ttls["stories:page=1"])

	var loaded cachedList
	hit, err = c.Get(ctx, "stories:page=1", &loaded)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, stored, loaded)
}

func TestRedisCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedisClient()
	c := NewRedisCache(rdb, adapter.NewJSON())

	require.NoError(t, c.Set(ctx, "k1", cachedList{Total: 1}, time.Minute))
	require.NoError(t, c.Set(ctx, "k2", cachedList{Total: 2}, time.Minute))

	require.NoError(t, c.Invalidate(ctx, "k1", "k2"))

	var dest cachedList
	hit, err := c.Get(ctx, "k1", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	// No-op without keys
	require.NoError(t, c.Invalidate(ctx))
}

func TestRedisCache_CorruptValue(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedisClient()
	rdb.values["broken"] = "{not json"
	c := NewRedisCache(rdb, adapter.NewJSON())

	var dest cachedList
	hit, err := c.Get(ctx, "broken", &dest)
	require.Error(t, err)
	assert.False(t, hit)
}

func TestNopCache(t *testing.T) {
	ctx := context.Background()
	c := NewNopCache()

	require.NoError(t, c.Set(ctx, "k", cachedList{Total: 1}, time.Minute))

	var dest cachedList
	hit, err := c.Get(ctx, "k", &dest)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.Invalidate(ctx, "k"))
}
