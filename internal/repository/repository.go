package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luvhive/luvhive-backend/internal/models"
)

var (
	// ErrNotFound 대상 레코드 없음
	ErrNotFound = errors.New("record not found")
	// ErrPairActive 같은 두 사용자 사이에 이미 활성 매치가 있음
	ErrPairActive = errors.New("pair already has an active match")
	// ErrQuotaExceeded 참가자 중 한 명이 일일 한도에 도달함 (QuotaExceededError로 감싸서 반환)
	ErrQuotaExceeded = errors.New("daily match quota exceeded")
)

// QuotaExceededError identifies which participant hit the daily limit.
type QuotaExceededError struct {
	UserID       int64
	MatchesToday int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: user %d has %d matches today", ErrQuotaExceeded, e.UserID, e.MatchesToday)
}

func (e *QuotaExceededError) Unwrap() error {
	return ErrQuotaExceeded
}

// QuotaGuard 매치 생성과 같은 트랜잭션 안에서 다시 검사할 일일 한도 조건
type QuotaGuard struct {
	DayStart time.Time
	DayEnd   time.Time
	Limit    int
	// Limited 한도가 적용되는(무료) 참가자. 비어 있으면 한도 검사 생략
	Limited []int64
}

// MessageApplier runs against the locked match row. It validates the send,
// bumps the counters on m and returns the message to persist.
type MessageApplier func(m *models.Match) (*models.ChatMessage, error)

// MatchRepository 미스터리 매치와 채팅 메시지 저장소
type MatchRepository interface {
	// CreateMatch inserts m only if the pair has no active match and every
	// limited participant is still under the quota, all in one atomic step.
	CreateMatch(ctx context.Context, m *models.Match, now time.Time, guard QuotaGuard) error
	FindByID(ctx context.Context, id string) (*models.Match, error)
	// FindByParticipant 사용자의 매치 중 expiresAfter 이후에 만료되는 것, 최신순
	FindByParticipant(ctx context.Context, userID int64, expiresAfter time.Time) ([]*models.Match, error)
	ActivePartnerIDs(ctx context.Context, userID int64, now time.Time) ([]int64, error)
	CountCreatedBetween(ctx context.Context, userID int64, from, to time.Time) (int, error)
	// UsersAtLimit 기간 내 생성된 매치 수가 limit 이상인 사용자
	UsersAtLimit(ctx context.Context, from, to time.Time, limit int) ([]int64, error)
	AppendMessage(ctx context.Context, matchID string, apply MessageApplier) (*models.Match, *models.ChatMessage, error)
	ListMessages(ctx context.Context, matchID string, before models.MessageCursor, limit int) ([]*models.ChatMessage, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// CandidateQuery 후보 풀 필터. 0 / 빈 문자열은 조건 없음
type CandidateQuery struct {
	ExcludeIDs []int64
	// ExcludeFreeIDs 무료 사용자일 때만 제외 (오늘 한도를 채운 사용자). Limit 적용 전에 걸러진다
	ExcludeFreeIDs []int64
	Gender     string
	AgeMin     int
	AgeMax     int
	Limit      int
}

// UserDirectory 외부 프로필 서비스의 읽기 전용 조회 인터페이스
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*models.UserProfile, error)
	ListCandidates(ctx context.Context, q CandidateQuery) ([]*models.UserProfile, error)
}
