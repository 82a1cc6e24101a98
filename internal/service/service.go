package service

import (
	"context"
	"time"

	"github.com/luvhive/luvhive-backend/internal/models"
)

// Clock 테스트에서 시간을 고정하기 위한 현재 시각 함수
type Clock func() time.Time

// UTCClock 기본 시계
func UTCClock() time.Time {
	return time.Now().UTC()
}

// Notifier delivers an event to the recipient's live connection, wherever it is.
type Notifier interface {
	Notify(ctx context.Context, event models.RealtimeEvent) error
}

// PresenceChecker 매치 채널에 사용자가 접속해 있는지 조회
type PresenceChecker interface {
	IsOnline(ctx context.Context, matchID string, userID int64) (bool, error)
}

// utcDay 주어진 시각이 속한 UTC 하루의 [시작, 끝)
func utcDay(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// NopNotifier 실시간 채널이 없을 때 사용
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, models.RealtimeEvent) error { return nil }
