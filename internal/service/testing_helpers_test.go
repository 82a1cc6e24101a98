package service

import (
	"context"
	"sync"
	"time"

	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/internal/repository"
)

var baseTime = time.Date(2026, 5, 20, 9, 30, 0, 0, time.UTC)

// fakeClock 테스트에서 시간을 앞으로 돌릴 수 있는 시계
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier 전달된 이벤트 기록
type recordingNotifier struct {
	mu     sync.Mutex
	events []models.RealtimeEvent
}

func (n *recordingNotifier) Notify(_ context.Context, event models.RealtimeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) ofType(eventType string) []models.RealtimeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.RealtimeEvent
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type staticPresence map[int64]bool

func (p staticPresence) IsOnline(_ context.Context, _ string, userID int64) (bool, error) {
	return p[userID], nil
}

type fixture struct {
	clock       *fakeClock
	matchRepo   *repository.MemoryMatchRepository
	directory   *repository.MemoryUserDirectory
	quota       *QuotaService
	matchmaking *MatchmakingService
	matches     *MatchService
	chat        *ChatService
	notifier    *recordingNotifier
}

func newFixture(users ...*models.UserProfile) *fixture {
	f := &fixture{
		clock:     newFakeClock(baseTime),
		matchRepo: repository.NewMemoryMatchRepository(),
		directory: repository.NewMemoryUserDirectory(users...),
		notifier:  &recordingNotifier{},
	}
	f.quota = NewQuotaService(f.matchRepo, DefaultDailyMatchLimit, f.clock.Now)
	f.matchmaking = NewMatchmakingService(f.matchRepo, f.directory, f.quota, nil, nil, f.clock.Now, DefaultMatchTTL)
	f.matches = NewMatchService(f.matchRepo, f.directory, f.clock.Now)
	f.chat = NewChatService(f.matchRepo, ChatServiceOptions{
		Notifier: f.notifier,
		Clock:    f.clock.Now,
	})
	return f
}

// createMatch 두 사용자 사이에 직접 매치 생성
func (f *fixture) createMatch(id string, a, b int64) *models.Match {
	m := models.NewMatch(id, a, b, f.clock.Now(), DefaultMatchTTL)
	if err := f.matchRepo.CreateMatch(context.Background(), m, f.clock.Now(), repository.QuotaGuard{}); err != nil {
		panic(err)
	}
	return m
}

func user(id int64, age int, gender string, premium bool) *models.UserProfile {
	return &models.UserProfile{
		ID:          id,
		DisplayName: "user",
		Age:         age,
		Gender:      gender,
		City:        "Busan",
		IsPremium:   premium,
	}
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
