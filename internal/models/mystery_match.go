package models

import "time"

type MatchStatus string

const (
	MatchStatusActive  MatchStatus = "active"
	MatchStatusExpired MatchStatus = "expired"
)

// Match 두 익명 사용자 간의 미스터리 매치.
// 참가자 쌍은 순서가 없으므로 항상 ParticipantAID < ParticipantBID 로 저장한다.
type Match struct {
	ID             string      `json:"match_id" db:"id"`
	ParticipantAID int64       `json:"participant_a_id" db:"participant_a_id"`
	ParticipantBID int64       `json:"participant_b_id" db:"participant_b_id"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	ExpiresAt      time.Time   `json:"expires_at" db:"expires_at"`
	MessageCount   int         `json:"message_count" db:"message_count"`
	UnlockLevel    int         `json:"unlock_level" db:"unlock_level"`
	Status         MatchStatus `json:"status" db:"status"`
}

// NewMatch 새 활성 매치 생성 (참가자 정렬, 만료 시각 계산)
func NewMatch(id string, userA, userB int64, now time.Time, ttl time.Duration) *Match {
	a, b := OrderedPair(userA, userB)
	return &Match{
		ID:             id,
		ParticipantAID: a,
		ParticipantBID: b,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		Status:         MatchStatusActive,
	}
}

// OrderedPair returns the pair with the smaller id first.
func OrderedPair(x, y int64) (int64, int64) {
	if x > y {
		return y, x
	}
	return x, y
}

func (m *Match) HasParticipant(userID int64) bool {
	return m.ParticipantAID == userID || m.ParticipantBID == userID
}

// PartnerOf 상대방 ID 반환. userID가 참가자가 아니면 false
func (m *Match) PartnerOf(userID int64) (int64, bool) {
	switch userID {
	case m.ParticipantAID:
		return m.ParticipantBID, true
	case m.ParticipantBID:
		return m.ParticipantAID, true
	}
	return 0, false
}

// IsExpired 저장된 상태와 무관하게 만료 시각이 지났으면 만료로 취급
func (m *Match) IsExpired(now time.Time) bool {
	return m.Status != MatchStatusActive || now.After(m.ExpiresAt)
}

func (m *Match) EffectiveStatus(now time.Time) MatchStatus {
	if m.IsExpired(now) {
		return MatchStatusExpired
	}
	return MatchStatusActive
}

// ChatMessage 매치 안에서 주고받은 메시지. 생성 후 변경되지 않는다.
type ChatMessage struct {
	ID       string    `json:"message_id" db:"id"`
	MatchID  string    `json:"match_id" db:"match_id"`
	SenderID int64     `json:"sender_id" db:"sender_id"`
	Text     string    `json:"text" db:"text"`
	SentAt   time.Time `json:"sent_at" db:"sent_at"`
}

// MessageCursor 대화 기록 페이지 경계. (SentAt, ID) 보다 앞선 메시지만 조회한다.
// ID가 비어 있으면 SentAt과 같은 시각의 메시지도 모두 제외된다.
type MessageCursor struct {
	SentAt time.Time
	ID     string
}

// Before reports whether msg sorts strictly before the cursor in (sent_at, id) order.
func (c MessageCursor) Before(msg *ChatMessage) bool {
	if !msg.SentAt.Equal(c.SentAt) {
		return msg.SentAt.Before(c.SentAt)
	}
	return msg.ID < c.ID
}
