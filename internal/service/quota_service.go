package service

import (
	"context"
	"fmt"

	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/internal/repository"
)

// DefaultDailyMatchLimit 무료 사용자의 UTC 하루 매치 생성 한도
const DefaultDailyMatchLimit = 3

// QuotaService 무료 등급 일일 매치 한도 계산.
// 최종 판정은 MatchRepository.CreateMatch 트랜잭션 안에서 다시 한다.
type QuotaService struct {
	matchRepo repository.MatchRepository
	limit     int
	now       Clock
}

func NewQuotaService(matchRepo repository.MatchRepository, limit int, now Clock) *QuotaService {
	if limit <= 0 {
		limit = DefaultDailyMatchLimit
	}
	if now == nil {
		now = UTCClock
	}
	return &QuotaService{matchRepo: matchRepo, limit: limit, now: now}
}

func (s *QuotaService) Limit() int {
	return s.limit
}

// CanCreateMatch 오늘(UTC) 매치 생성 가능 여부
func (s *QuotaService) CanCreateMatch(ctx context.Context, user *models.UserProfile) (*models.QuotaStatus, error) {
	from, to := utcDay(s.now())

	count, err := s.matchRepo.CountCreatedBetween(ctx, user.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count today's matches: %w", err)
	}

	if user.IsPremium {
		return &models.QuotaStatus{Allowed: true, MatchesToday: count}, nil
	}

	limit := s.limit
	return &models.QuotaStatus{
		Allowed:      count < limit,
		MatchesToday: count,
		Limit:        &limit,
	}, nil
}

// Guard 매치 생성 트랜잭션에서 재검사할 조건. 프리미엄 참가자는 제외한다.
func (s *QuotaService) Guard(participants ...*models.UserProfile) repository.QuotaGuard {
	from, to := utcDay(s.now())
	guard := repository.QuotaGuard{DayStart: from, DayEnd: to, Limit: s.limit}
	for _, p := range participants {
		if !p.IsPremium {
			guard.Limited = append(guard.Limited, p.ID)
		}
	}
	return guard
}

// ExhaustedUsers 오늘 한도에 도달한 사용자 ID (무료/프리미엄 구분 없이)
func (s *QuotaService) ExhaustedUsers(ctx context.Context) ([]int64, error) {
	from, to := utcDay(s.now())
	ids, err := s.matchRepo.UsersAtLimit(ctx, from, to, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load users at daily limit: %w", err)
	}
	return ids, nil
}

// QuotaExceededResult 한도 초과 응답
func QuotaExceededResult(matchesToday, limit int) *models.FindMatchResult {
	return &models.FindMatchResult{
		Success:      false,
		Error:        models.ErrorDailyLimitReached,
		Message:      fmt.Sprintf("You've used all %d matches today, try again tomorrow", limit),
		MatchesToday: &matchesToday,
		Limit:        &limit,
	}
}
