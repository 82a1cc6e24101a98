package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/internal/repository"
	"github.com/luvhive/luvhive-backend/internal/unlock"
	"github.com/luvhive/luvhive-backend/pkg/metrics"
	"github.com/luvhive/luvhive-backend/pkg/ratelimit"
	"go.uber.org/zap"
)

const (
	maxMessageRunes     = 2000
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ChatService 매치 채팅: 메시지 전송, 잠금 해제 감지, typing 중계, 접속 상태
type ChatService struct {
	matchRepo repository.MatchRepository
	notifier  Notifier
	presence  PresenceChecker
	limiter   ratelimit.Limiter
	metrics   metrics.MysteryMetrics
	logger    *zap.Logger
	now       Clock
}

type ChatServiceOptions struct {
	Notifier Notifier
	Presence PresenceChecker
	// Limiter 매치+발신자 단위 전송 제한. nil이면 제한 없음
	Limiter ratelimit.Limiter
	Metrics metrics.MysteryMetrics
	Logger  *zap.Logger
	Clock   Clock
}

func NewChatService(matchRepo repository.MatchRepository, opts ChatServiceOptions) *ChatService {
	s := &ChatService{
		matchRepo: matchRepo,
		notifier:  opts.Notifier,
		presence:  opts.Presence,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Clock,
	}
	if s.notifier == nil {
		s.notifier = NopNotifier{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = UTCClock
	}
	return s
}

// SendMessage 메시지 저장과 message_count 증가, 잠금 단계 재계산을 한 번에 처리.
// 잠금 단계가 오른 바로 그 메시지에서만 UnlockAchieved가 채워진다.
func (s *ChatService) SendMessage(ctx context.Context, matchID string, senderID int64, text string) (*models.SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > maxMessageRunes {
		return nil, fmt.Errorf("%w: text must be 1-%d characters", ErrInvalidMessage, maxMessageRunes)
	}

	if err := s.checkRate(ctx, matchID, senderID); err != nil {
		return nil, err
	}

	now := s.now()
	levelUp := false

	match, msg, err := s.matchRepo.AppendMessage(ctx, matchID, func(m *models.Match) (*models.ChatMessage, error) {
		if m.IsExpired(now) {
			return nil, ErrMatchExpired
		}
		if !m.HasParticipant(senderID) {
			return nil, ErrNotAParticipant
		}

		m.MessageCount++
		if level, changed := unlock.Transition(m.UnlockLevel, m.MessageCount); changed {
			m.UnlockLevel = level
			levelUp = true
		}

		return &models.ChatMessage{
			ID:       uuid.Must(uuid.NewV7()).String(),
			MatchID:  m.ID,
			SenderID: senderID,
			Text:     text,
			SentAt:   now,
		}, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMatchNotFound
		}
		if errors.Is(err, ErrMatchExpired) || errors.Is(err, ErrNotAParticipant) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	s.metrics.MessageSent()

	result := &models.SendResult{
		Success:      true,
		MessageID:    msg.ID,
		MessageCount: match.MessageCount,
	}
	if next, ok := unlock.Threshold(match.UnlockLevel + 1); ok {
		result.NextUnlockAt = &next
	}

	partnerID, _ := match.PartnerOf(senderID)
	s.notify(ctx, models.RealtimeEvent{
		MatchID:     match.ID,
		RecipientID: partnerID,
		Type:        models.EventMessage,
		Payload:     msg,
	})

	if levelUp {
		achieved := &models.UnlockAchieved{Level: match.UnlockLevel, Unlocked: unlock.Reveal(match.UnlockLevel)}
		result.UnlockAchieved = achieved
		s.metrics.UnlockReached(achieved.Level)

		s.logger.Info("Unlock level reached",
			zap.String("matchId", match.ID),
			zap.Int("level", achieved.Level),
			zap.Int("messageCount", match.MessageCount))

		payload := models.UnlockPayload{MatchID: match.ID, Level: achieved.Level, Unlocked: achieved.Unlocked}
		for _, recipient := range []int64{match.ParticipantAID, match.ParticipantBID} {
			s.notify(ctx, models.RealtimeEvent{
				MatchID:     match.ID,
				RecipientID: recipient,
				Type:        models.EventUnlock,
				Payload:     payload,
			})
		}
	}

	return result, nil
}

// RelayTyping typing 신호 중계. 저장하지 않으며 만료된 매치에서는 조용히 버린다.
func (s *ChatService) RelayTyping(ctx context.Context, matchID string, userID int64, isTyping bool) error {
	match, partnerID, err := s.loadForParticipant(ctx, matchID, userID)
	if err != nil {
		return err
	}
	if match.IsExpired(s.now()) {
		return nil
	}

	s.notify(ctx, models.RealtimeEvent{
		MatchID:     matchID,
		RecipientID: partnerID,
		Type:        models.EventTyping,
		Payload:     models.TypingPayload{MatchID: matchID, UserID: userID, IsTyping: isTyping},
		BestEffort:  true,
	})
	return nil
}

// GetOnlineStatus 상대방이 이 매치 채널에 접속 중인지
func (s *ChatService) GetOnlineStatus(ctx context.Context, matchID string, userID int64) (bool, error) {
	_, partnerID, err := s.loadForParticipant(ctx, matchID, userID)
	if err != nil {
		return false, err
	}
	if s.presence == nil {
		return false, nil
	}

	online, err := s.presence.IsOnline(ctx, matchID, partnerID)
	if err != nil {
		// presence는 best-effort
		s.logger.Warn("Presence lookup failed", zap.String("matchId", matchID), zap.Error(err))
		return false, nil
	}
	return online, nil
}

// ListMessages 대화 기록 (최신순). 만료된 매치도 참가자는 읽을 수 있다.
func (s *ChatService) ListMessages(ctx context.Context, matchID string, userID int64, limit int, before *models.MessageCursor) ([]*models.ChatMessage, error) {
	if _, _, err := s.loadForParticipant(ctx, matchID, userID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	cursor := models.MessageCursor{SentAt: s.now().Add(time.Second)}
	if before != nil {
		cursor = *before
	}

	messages, err := s.matchRepo.ListMessages(ctx, matchID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Authorize 실시간 채널 접속 권한 확인 (참가자이고 만료되지 않은 매치)
func (s *ChatService) Authorize(ctx context.Context, matchID string, userID int64) (*models.Match, error) {
	match, _, err := s.loadForParticipant(ctx, matchID, userID)
	if err != nil {
		return nil, err
	}
	if match.IsExpired(s.now()) {
		return nil, ErrMatchExpired
	}
	return match, nil
}

func (s *ChatService) loadForParticipant(ctx context.Context, matchID string, userID int64) (*models.Match, int64, error) {
	match, err := s.matchRepo.FindByID(ctx, matchID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find match: %w", err)
	}
	if match == nil {
		return nil, 0, ErrMatchNotFound
	}
	partnerID, ok := match.PartnerOf(userID)
	if !ok {
		return nil, 0, ErrNotAParticipant
	}
	return match, partnerID, nil
}

// checkRate Redis 장애 시에는 전송을 막지 않는다 (fail-open)
func (s *ChatService) checkRate(ctx context.Context, matchID string, senderID int64) error {
	if s.limiter == nil {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, fmt.Sprintf("%s:%d", matchID, senderID))
	if err != nil {
		s.logger.Warn("Message rate limit check failed", zap.String("matchId", matchID), zap.Error(err))
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

func (s *ChatService) notify(ctx context.Context, event models.RealtimeEvent) {
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("Failed to deliver realtime event",
			zap.String("matchId", event.MatchID),
			zap.String("type", event.Type),
			zap.Error(err))
	}
}
