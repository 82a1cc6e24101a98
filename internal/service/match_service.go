package service

import (
	"context"
	"fmt"
	"time"

	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/internal/repository"
	"github.com/luvhive/luvhive-backend/internal/unlock"
	"golang.org/x/sync/errgroup"
)

// expiredRetention include_expired 조회 시 만료 후에도 목록에 남기는 기간
const expiredRetention = 24 * time.Hour

// MatchService 매치 목록 조회. 상대 정보는 unlock.ProjectPartner로만 노출한다.
type MatchService struct {
	matchRepo repository.MatchRepository
	directory repository.UserDirectory
	now       Clock
}

func NewMatchService(matchRepo repository.MatchRepository, directory repository.UserDirectory, now Clock) *MatchService {
	if now == nil {
		now = UTCClock
	}
	return &MatchService{matchRepo: matchRepo, directory: directory, now: now}
}

// ListMatches 사용자의 매치 목록 (최신순)
func (s *MatchService) ListMatches(ctx context.Context, userID int64, includeExpired bool) ([]models.MatchSummary, error) {
	now := s.now()
	since := now
	if includeExpired {
		since = now.Add(-expiredRetention)
	}

	matches, err := s.matchRepo.FindByParticipant(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	if !includeExpired {
		// 만료 시각 전이라도 sweeper가 상태를 바꾼 매치는 제외
		active := matches[:0]
		for _, m := range matches {
			if !m.IsExpired(now) {
				active = append(active, m)
			}
		}
		matches = active
	}

	partners := make([]*models.UserProfile, len(matches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, m := range matches {
		i := i
		partnerID, _ := m.PartnerOf(userID)
		g.Go(func() error {
			p, err := s.directory.GetUser(gctx, partnerID)
			if err != nil {
				return fmt.Errorf("failed to load partner %d: %w", partnerID, err)
			}
			if p == nil {
				// 탈퇴 등으로 프로필이 없으면 별칭만 노출
				p = &models.UserProfile{ID: partnerID}
			}
			partners[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summaries := make([]models.MatchSummary, 0, len(matches))
	for i, m := range matches {
		summaries = append(summaries, models.MatchSummary{
			MatchID:      m.ID,
			Partner:      unlock.ProjectPartner(m.ID, partners[i], m.UnlockLevel),
			MessageCount: m.MessageCount,
			UnlockLevel:  m.UnlockLevel,
			Status:       m.EffectiveStatus(now),
			CreatedAt:    m.CreatedAt,
			ExpiresAt:    m.ExpiresAt,
		})
	}
	return summaries, nil
}
