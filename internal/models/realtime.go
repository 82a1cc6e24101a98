package models

// 실시간 이벤트 타입
const (
	EventMessage  = "message"
	EventTyping   = "typing"
	EventUnlock   = "unlock"
	EventPresence = "presence"
)

// RealtimeEvent 매치 참가자 한 명에게 전달되는 이벤트
type RealtimeEvent struct {
	MatchID     string      `json:"match_id"`
	RecipientID int64       `json:"recipient_id"`
	Type        string      `json:"type"`
	Payload     interface{} `json:"payload"`
	// BestEffort 수신 버퍼가 가득 차면 버려도 되는 이벤트 (typing 등)
	BestEffort bool `json:"best_effort,omitempty"`
}

type TypingPayload struct {
	MatchID  string `json:"match_id"`
	UserID   int64  `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type UnlockPayload struct {
	MatchID  string `json:"match_id"`
	Level    int    `json:"level"`
	Unlocked string `json:"unlocked"`
}

type PresencePayload struct {
	MatchID string `json:"match_id"`
	UserID  int64  `json:"user_id"`
	Online  bool   `json:"online"`
}
