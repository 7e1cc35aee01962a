package ratelimiter

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, buckets map[string]BucketConfig) *RedisLuaLimiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLuaLimiter(rdb, buckets)
}

func TestAllow_NilLimiterFailsOpen(t *testing.T) {
	var limiter *RedisLuaLimiter
	allowed, retryAfter, err := limiter.Allow(context.Background(), "any", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Zero(t, retryAfter)
}

func TestAllow_UnknownKeyFailsOpen(t *testing.T) {
	limiter := newTestLimiter(t, map[string]BucketConfig{})
	allowed, _, err := limiter.Allow(context.Background(), "provider:unknown", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestAllow_DrainsBucketThenRejects(t *testing.T) {
	limiter := newTestLimiter(t, map[string]BucketConfig{
		"provider:openrouter": {Capacity: 2, RefillRate: 1},
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Allow(ctx, "provider:openrouter", 1)
		require.NoError(t, err)
		require.True(t, allowed, "request %d should pass", i)
	}
	allowed, retryAfter, err := limiter.Allow(ctx, "provider:openrouter", 1)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
	assert.LessOrEqual(t, retryAfter, 2*time.Second)
}

func TestAllow_CostDefaultsToOne(t *testing.T) {
	limiter := newTestLimiter(t, map[string]BucketConfig{
		"provider:groq": {Capacity: 1, RefillRate: 0.01},
	})
	allowed, _, err := limiter.Allow(context.Background(), "provider:groq", 0)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, _, err = limiter.Allow(context.Background(), "provider:groq", 0)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAllow_RedisDownFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedisLuaLimiter(rdb, map[string]BucketConfig{
		"provider:openai": {Capacity: 1, RefillRate: 1},
	})
	mr.Close()

	allowed, _, err := limiter.Allow(context.Background(), "provider:openai", 1)
	require.Error(t, err)
	assert.True(t, allowed, "redis outage must not block provider calls")
}

func TestSetBucketConfig(t *testing.T) {
	limiter := newTestLimiter(t, nil)
	ctx := context.Background()

	allowed, _, err := limiter.Allow(ctx, "provider:openrouter", 1)
	require.NoError(t, err)
	assert.True(t, allowed, "no bucket yet, fail open")

	limiter.SetBucketConfig("provider:openrouter", BucketConfig{Capacity: 1, RefillRate: 0.01})
	allowed, _, err = limiter.Allow(ctx, "provider:openrouter", 1)
	require.NoError(t, err)
	assert.True(t, allowed)
	allowed, _, err = limiter.Allow(ctx, "provider:openrouter", 1)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestNewBucketConfigFromPerMinute(t *testing.T) {
	cfg := NewBucketConfigFromPerMinute(30)
	assert.Equal(t, int64(30), cfg.Capacity)
	assert.InDelta(t, 0.5, cfg.RefillRate, 1e-9)
	assert.Zero(t, NewBucketConfigFromPerMinute(0))
}
