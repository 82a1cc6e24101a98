package distributed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제하도록 값 비교 후 삭제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// RedisLock 획득한 분산 락 하나
type RedisLock struct {
	client redis.UniversalClient
	key    string
	value  string
}

// RedisLockManager Redis 분산 락 관리자
type RedisLockManager struct {
	client     redis.UniversalClient
	instanceID string
}

func NewRedisLockManager(client redis.UniversalClient) *RedisLockManager {
	return &RedisLockManager{
		client:     client,
		instanceID: uuid.NewString(),
	}
}

// AcquireLock SET NX로 락 획득. 이미 잡혀 있으면 ErrLockNotAcquired
func (m *RedisLockManager) AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (*RedisLock, error) {
	ok, err := m.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &RedisLock{client: m.client, key: key, value: value}, nil
}

// TryLock 인스턴스 ID를 값으로 락 시도. 다른 인스턴스가 잡고 있으면 ok=false, err=nil
func (m *RedisLockManager) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lock, err := m.AcquireLock(ctx, key, m.instanceID, ttl)
	if errors.Is(err, ErrLockNotAcquired) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// TTL로 이미 풀렸으면 ErrLockNotHeld, 무시해도 된다
		_ = lock.Release(releaseCtx)
	}
	return release, true, nil
}

// Release 락 해제
func (l *RedisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
