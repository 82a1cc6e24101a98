package distributed

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPresenceTTL 연결이 끊긴 인스턴스가 남긴 키가 사라지는 시간 (ping 주기보다 길게)
const DefaultPresenceTTL = 90 * time.Second

// 연결 수를 세어 같은 사용자의 다른 기기/인스턴스 연결이 남아 있으면 online 유지
var (
	joinScript = redis.NewScript(`
		local n = redis.call("INCR", KEYS[1])
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
		return n
	`)
	leaveScript = redis.NewScript(`
		local n = redis.call("DECR", KEYS[1])
		if n <= 0 then
			redis.call("DEL", KEYS[1])
			return 0
		end
		return n
	`)
)

// RedisPresence 매치 채널 접속 상태를 인스턴스 간에 공유
type RedisPresence struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

func NewRedisPresence(client redis.UniversalClient, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &RedisPresence{client: client, keyPrefix: "mystery:presence:", ttl: ttl}
}

func (p *RedisPresence) key(matchID string, userID int64) string {
	return fmt.Sprintf("%s%s:%d", p.keyPrefix, matchID, userID)
}

// Join 연결 하나 추가
func (p *RedisPresence) Join(ctx context.Context, matchID string, userID int64) error {
	if err := joinScript.Run(ctx, p.client, []string{p.key(matchID, userID)}, p.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("failed to mark presence: %w", err)
	}
	return nil
}

// Leave 연결 하나 제거
func (p *RedisPresence) Leave(ctx context.Context, matchID string, userID int64) error {
	if err := leaveScript.Run(ctx, p.client, []string{p.key(matchID, userID)}).Err(); err != nil {
		return fmt.Errorf("failed to clear presence: %w", err)
	}
	return nil
}

// Refresh 연결이 살아 있는 동안 ping 주기마다 TTL 연장
func (p *RedisPresence) Refresh(ctx context.Context, matchID string, userID int64) error {
	return p.client.PExpire(ctx, p.key(matchID, userID), p.ttl).Err()
}

func (p *RedisPresence) IsOnline(ctx context.Context, matchID string, userID int64) (bool, error) {
	n, err := p.client.Exists(ctx, p.key(matchID, userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read presence: %w", err)
	}
	return n > 0, nil
}
