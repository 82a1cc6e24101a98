package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript 토큰 조회, 경과 시간만큼 리필, 1개 소비를 원자적으로 처리.
// 반환값: {allowed, remaining, reset_unix}
var tokenBucketScript = redis.NewScript(`
	local tokens_key = KEYS[1] .. ":tokens"
	local timestamp_key = KEYS[1] .. ":timestamp"
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local tokens = tonumber(redis.call('GET', tokens_key))
	local last_update = tonumber(redis.call('GET', timestamp_key))
	if tokens == nil or last_update == nil then
		tokens = limit
		last_update = now
	end

	local refill_rate = limit / window
	local new_tokens = math.min(limit, tokens + ((now - last_update) * refill_rate))

	local allowed = 0
	if new_tokens >= 1 then
		new_tokens = new_tokens - 1
		allowed = 1
	end

	redis.call('SET', tokens_key, new_tokens, 'EX', window * 2)
	redis.call('SET', timestamp_key, now, 'EX', window * 2)

	return {allowed, math.floor(new_tokens), now + window}
`)

// RedisRateLimiter 여러 인스턴스가 한도를 공유하는 Redis token bucket
type RedisRateLimiter struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisRateLimiter(client redis.UniversalClient, keyPrefix string) *RedisRateLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RedisRateLimiter{client: client, keyPrefix: keyPrefix}
}

// RateLimitInfo Rate Limit 상세 정보
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// AllowWithInfo window 동안 limit 개까지 허용 (window/limit 마다 1개 리필)
func (r *RedisRateLimiter) AllowWithInfo(ctx context.Context, key string, limit int, window time.Duration) (bool, *RateLimitInfo, error) {
	if limit <= 0 || window < time.Second {
		return false, nil, fmt.Errorf("invalid rate limit %d per %v", limit, window)
	}

	result, err := tokenBucketScript.Run(ctx, r.client,
		[]string{r.keyPrefix + key},
		limit, int(window.Seconds()), time.Now().Unix(),
	).Int64Slice()
	if err != nil {
		return false, nil, fmt.Errorf("redis script execution failed: %w", err)
	}
	if len(result) < 3 {
		return false, nil, fmt.Errorf("invalid script result: %v", result)
	}

	return result[0] == 1, &RateLimitInfo{
		Limit:     limit,
		Remaining: int(result[1]),
		ResetTime: time.Unix(result[2], 0),
	}, nil
}

// Scoped limit/window를 고정한 Limiter
func (r *RedisRateLimiter) Scoped(limit int, window time.Duration) Limiter {
	return &scopedRedisLimiter{parent: r, limit: limit, window: window}
}

type scopedRedisLimiter struct {
	parent *RedisRateLimiter
	limit  int
	window time.Duration
}

func (s *scopedRedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, _, err := s.parent.AllowWithInfo(ctx, key, s.limit, s.window)
	return allowed, err
}
