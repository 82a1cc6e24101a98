package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter 키 단위 요청 제한. 로컬 token bucket과 Redis 구현이 같은 인터페이스를 따른다.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// TokenBucket implements the token bucket algorithm for rate limiting
type TokenBucket struct {
	mu         sync.Mutex
	capacity   int64
	tokens     int64
	refillRate int64 // tokens per second
	lastRefill time.Time
	lastUsed   time.Time
}

func NewTokenBucket(capacity, refillRate int64) *TokenBucket {
	now := time.Now()
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: now,
		lastUsed:   now,
	}
}

// AllowN n개의 토큰이 있으면 소비하고 true
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.refill(now)
	tb.lastUsed = now

	if tb.tokens < n {
		return false
	}
	tb.tokens -= n
	return true
}

// refill 경과한 초 단위로만 토큰을 채운다 (1초 미만 경과분은 다음 호출로 이월)
func (tb *TokenBucket) refill(now time.Time) {
	seconds := int64(now.Sub(tb.lastRefill) / time.Second)
	if seconds <= 0 {
		return
	}

	tb.tokens += seconds * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = tb.lastRefill.Add(time.Duration(seconds) * time.Second)
}

// idleSince 마지막 사용 이후 경과 시간
func (tb *TokenBucket) idleSince(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return now.Sub(tb.lastUsed)
}

// RateLimiter 키(매치+사용자, IP 등)별 token bucket 모음
type RateLimiter struct {
	mu              sync.RWMutex
	buckets         map[string]*TokenBucket
	capacity        int64
	refillRate      int64
	cleanupInterval time.Duration
	stopChan        chan struct{}
	stopOnce        sync.Once
}

func NewRateLimiter(capacity, refillRate int64) *RateLimiter {
	rl := &RateLimiter{
		buckets:         make(map[string]*TokenBucket),
		capacity:        capacity,
		refillRate:      refillRate,
		cleanupInterval: 10 * time.Minute,
		stopChan:        make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow 로컬 판정이라 에러는 항상 nil
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, error) {
	return rl.AllowN(key, 1), nil
}

func (rl *RateLimiter) AllowN(key string, n int64) bool {
	return rl.getBucket(key).AllowN(n)
}

func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[key]
	rl.mu.RUnlock()
	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if bucket, exists = rl.buckets[key]; exists {
		return bucket
	}
	bucket = NewTokenBucket(rl.capacity, rl.refillRate)
	rl.buckets[key] = bucket
	return bucket
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopChan:
			return
		}
	}
}

// cleanup 오래 사용되지 않은 bucket 제거. 끝난 매치의 키가 계속 쌓이지 않도록 한다.
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, bucket := range rl.buckets {
		if bucket.idleSince(now) > rl.cleanupInterval {
			delete(rl.buckets, key)
		}
	}
}

// Stop 정리 고루틴 종료
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}
