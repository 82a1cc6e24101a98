package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/google/uuid"
	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/internal/repository"
	"github.com/luvhive/luvhive-backend/pkg/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultMatchTTL 매치는 활동과 관계없이 생성 24시간 후 만료
	DefaultMatchTTL = 24 * time.Hour

	// maxCreateAttempts 동시 요청으로 후보가 선점됐을 때 다른 후보로 재시도하는 횟수
	maxCreateAttempts = 5

	candidatePoolSize = 200
)

type MatchmakingService struct {
	matchRepo repository.MatchRepository
	directory repository.UserDirectory
	quota     *QuotaService
	metrics   metrics.MysteryMetrics
	logger    *zap.Logger
	now       Clock
	ttl       time.Duration
	pick      func(n int) int
}

func NewMatchmakingService(
	matchRepo repository.MatchRepository,
	directory repository.UserDirectory,
	quota *QuotaService,
	m metrics.MysteryMetrics,
	logger *zap.Logger,
	now Clock,
	ttl time.Duration,
) *MatchmakingService {
	if now == nil {
		now = UTCClock
	}
	if ttl <= 0 {
		ttl = DefaultMatchTTL
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MatchmakingService{
		matchRepo: matchRepo,
		directory: directory,
		quota:     quota,
		metrics:   m,
		logger:    logger,
		now:       now,
		ttl:       ttl,
		pick:      rand.Intn,
	}
}

// FindMatch 요청자에게 익명 상대를 찾아 새 매치 생성.
// 한도 초과, 후보 없음, 성별 필터 불가는 에러가 아니라 Success=false 결과로 반환한다.
// 상대 선택은 필터를 통과한 후보 중 무작위이며 결정적이지 않다.
func (s *MatchmakingService) FindMatch(ctx context.Context, req models.FindMatchRequest) (*models.FindMatchResult, error) {
	start := time.Now()
	defer func() { s.metrics.FindMatchElapsed(time.Since(start)) }()

	ageMin, ageMax, err := ageBounds(req)
	if err != nil {
		return nil, err
	}

	user, err := s.directory.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	quota, err := s.quota.CanCreateMatch(ctx, user)
	if err != nil {
		return nil, err
	}
	if !quota.Allowed {
		return s.reject(QuotaExceededResult(quota.MatchesToday, s.quota.Limit())), nil
	}

	// 성별 필터는 프리미엄 전용. 무료 사용자가 요청하면 무시하지 않고 거절한다.
	gender := ""
	if req.PreferredGender != nil {
		gender = strings.ToLower(strings.TrimSpace(*req.PreferredGender))
	}
	if gender != "" && !user.IsPremium {
		return s.reject(&models.FindMatchResult{
			Error:   models.ErrorGenderNotAvailable,
			Message: "Gender preference is a premium feature",
		}), nil
	}

	pool, err := s.candidatePool(ctx, user, repository.CandidateQuery{
		Gender: gender,
		AgeMin: ageMin,
		AgeMax: ageMax,
		Limit:  candidatePoolSize,
	})
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCreateAttempts && len(pool) > 0; attempt++ {
		i := s.pick(len(pool))
		partner := pool[i]
		now := s.now()

		match := models.NewMatch(uuid.Must(uuid.NewV7()).String(), user.ID, partner.ID, now, s.ttl)
		err := s.matchRepo.CreateMatch(ctx, match, now, s.quota.Guard(user, partner))

		var quotaErr *repository.QuotaExceededError
		switch {
		case err == nil:
			s.metrics.MatchCreated(user.IsPremium)
			s.logger.Info("Mystery match created",
				zap.String("matchId", match.ID),
				zap.Int64("userId", user.ID),
				zap.Int("poolSize", len(pool)))
			expiresAt := match.ExpiresAt
			return &models.FindMatchResult{
				Success:   true,
				MatchID:   match.ID,
				ExpiresAt: &expiresAt,
			}, nil

		case errors.As(err, &quotaErr) && quotaErr.UserID == user.ID:
			// 다른 기기에서 동시에 요청해 한도를 먼저 채운 경우
			return s.reject(QuotaExceededResult(quotaErr.MatchesToday, s.quota.Limit())), nil

		case errors.As(err, &quotaErr), errors.Is(err, repository.ErrPairActive):
			s.logger.Debug("Candidate taken concurrently, retrying",
				zap.Int64("userId", user.ID),
				zap.Int64("candidateId", partner.ID),
				zap.Error(err))
			pool = append(pool[:i], pool[i+1:]...)

		default:
			return nil, fmt.Errorf("failed to create match: %w", err)
		}
	}

	return s.reject(&models.FindMatchResult{
		Error:   models.ErrorNoCandidatesAvailable,
		Message: "No matches available right now",
	}), nil
}

// Quota 사용자의 오늘 한도 상태
func (s *MatchmakingService) Quota(ctx context.Context, userID int64) (*models.QuotaStatus, error) {
	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return s.quota.CanCreateMatch(ctx, user)
}

// candidatePool 본인, 활성 매치 상대, 오늘 한도를 채운 무료 사용자를 제외한 후보
func (s *MatchmakingService) candidatePool(ctx context.Context, user *models.UserProfile, q repository.CandidateQuery) ([]*models.UserProfile, error) {
	partners, err := s.matchRepo.ActivePartnerIDs(ctx, user.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load active partners: %w", err)
	}
	q.ExcludeIDs = append([]int64{user.ID}, partners...)

	// 한도 검사는 후보 수 제한보다 먼저 적용돼야 하므로 저장소 쿼리에 넘긴다
	q.ExcludeFreeIDs, err = s.quota.ExhaustedUsers(ctx)
	if err != nil {
		return nil, err
	}

	candidates, err := s.directory.ListCandidates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	return pie.Filter(candidates, func(c *models.UserProfile) bool {
		return c.ID != user.ID
	}), nil
}

func (s *MatchmakingService) reject(result *models.FindMatchResult) *models.FindMatchResult {
	result.Success = false
	s.metrics.FindMatchRejected(result.Error)
	return result
}

func ageBounds(req models.FindMatchRequest) (int, int, error) {
	var ageMin, ageMax int
	if req.PreferredAgeMin != nil {
		ageMin = *req.PreferredAgeMin
	}
	if req.PreferredAgeMax != nil {
		ageMax = *req.PreferredAgeMax
	}
	if ageMin < 0 || ageMax < 0 {
		return 0, 0, fmt.Errorf("%w: age bounds must be positive", ErrInvalidInput)
	}
	if ageMin > 0 && ageMax > 0 && ageMin > ageMax {
		return 0, 0, fmt.Errorf("%w: preferred_age_min is greater than preferred_age_max", ErrInvalidInput)
	}
	return ageMin, ageMax, nil
}
