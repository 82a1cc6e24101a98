package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisRateLimiter 테스트용 Redis Rate Limiter 설정
// 주의: 실제 Redis 서버가 필요합니다 (localhost:6379)
// keys는 테스트 전후로 지울 bucket 키
func setupRedisRateLimiter(t *testing.T, keys ...string) *RedisRateLimiter {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // 테스트용 DB
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis server not available: %v", err)
	}

	const prefix = "test:ratelimit:"
	var redisKeys []string
	for _, k := range keys {
		redisKeys = append(redisKeys, prefix+k+":tokens", prefix+k+":timestamp")
	}
	dropKeys := func() {
		if len(redisKeys) > 0 {
			client.Del(context.Background(), redisKeys...)
		}
	}
	dropKeys()
	t.Cleanup(func() {
		dropKeys()
		_ = client.Close()
	})

	return NewRedisRateLimiter(client, prefix)
}

func TestRedisRateLimiter_AllowWithInfo(t *testing.T) {
	key := "find-match:123"
	limiter := setupRedisRateLimiter(t, key)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, info, err := limiter.AllowWithInfo(ctx, key, 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, info.Limit)
		assert.Equal(t, 4-i, info.Remaining)
	}

	allowed, info, err := limiter.AllowWithInfo(ctx, key, 5, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.True(t, info.ResetTime.After(time.Now()))
}

func TestRedisRateLimiter_Scoped(t *testing.T) {
	limiter := setupRedisRateLimiter(t, "m1:1", "m1:2")
	ctx := context.Background()

	scoped := limiter.Scoped(2, time.Minute)

	for i := 0; i < 2; i++ {
		ok, err := scoped.Allow(ctx, "m1:1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := scoped.Allow(ctx, "m1:1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = scoped.Allow(ctx, "m1:2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisRateLimiter_InvalidConfig(t *testing.T) {
	limiter := NewRedisRateLimiter(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	_, _, err := limiter.AllowWithInfo(context.Background(), "k", 0, time.Minute)
	assert.Error(t, err)
}
