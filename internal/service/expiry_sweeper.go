package service

import (
	"context"
	"sync"
	"time"

	"github.com/luvhive/luvhive-backend/internal/repository"
	"github.com/luvhive/luvhive-backend/pkg/metrics"
	"go.uber.org/zap"
)

// SweepLocker 여러 인스턴스 중 하나만 sweep 하도록 하는 분산 락
type SweepLocker interface {
	// TryLock returns ok=false without error when another instance holds the lock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

const sweepLockKey = "mystery:sweeper:lock"

// ExpirySweeper 만료 시각이 지난 매치를 주기적으로 expired 상태로 전환.
// 만료 판정은 접근 시점에도 하므로 sweeper는 저장된 상태 정리만 담당한다.
type ExpirySweeper struct {
	matchRepo repository.MatchRepository
	locker    SweepLocker
	metrics   metrics.MysteryMetrics
	logger    *zap.Logger
	now       Clock
	interval  time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
	running   bool
	mu        sync.Mutex
}

func NewExpirySweeper(
	matchRepo repository.MatchRepository,
	locker SweepLocker,
	m metrics.MysteryMetrics,
	logger *zap.Logger,
	now Clock,
	interval time.Duration,
) *ExpirySweeper {
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = UTCClock
	}
	if interval <= 0 {
		interval = time.Minute
	}

	return &ExpirySweeper{
		matchRepo: matchRepo,
		locker:    locker,
		metrics:   m,
		logger:    logger,
		now:       now,
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

// Start sweeper 시작
func (s *ExpirySweeper) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting ExpirySweeper", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.loop()
}

// Stop sweeper 중지
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("ExpirySweeper stopped")
}

func (s *ExpirySweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// 시작 시 한번 실행
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// Sweep 한 번 실행. 만료 처리한 매치 수 반환
func (s *ExpirySweeper) Sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.interval)
		if err != nil {
			s.logger.Error("Failed to acquire sweeper lock", zap.Error(err))
			return 0
		}
		if !ok {
			s.logger.Debug("Sweeper lock held by another instance")
			return 0
		}
		defer release()
	}

	n, err := s.matchRepo.ExpireStale(ctx, s.now())
	if err != nil {
		s.logger.Error("Failed to expire matches", zap.Error(err))
		return 0
	}
	if n > 0 {
		s.metrics.MatchesExpired(n)
		s.logger.Info("Expired mystery matches", zap.Int64("count", n))
	}
	return n
}
