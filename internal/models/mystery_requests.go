package models

import "time"

// Result error tags. 비즈니스 규칙상의 실패로 예외가 아니라 응답 값이다.
const (
	ErrorDailyLimitReached     = "daily_limit_reached"
	ErrorNoCandidatesAvailable = "no_candidates_available"
	ErrorGenderNotAvailable    = "gender_not_available"
)

type FindMatchRequest struct {
	UserID          int64   `json:"-"`
	PreferredGender *string `json:"preferred_gender,omitempty"`
	PreferredAgeMin *int    `json:"preferred_age_min,omitempty" binding:"omitempty,min=18,max=120"`
	PreferredAgeMax *int    `json:"preferred_age_max,omitempty" binding:"omitempty,min=18,max=120"`
}

// FindMatchResult 성공이면 MatchID/ExpiresAt, 실패면 Error 태그와 안내 메시지
type FindMatchResult struct {
	Success      bool       `json:"success"`
	MatchID      string     `json:"match_id,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Error        string     `json:"error,omitempty"`
	Message      string     `json:"message,omitempty"`
	MatchesToday *int       `json:"matches_today,omitempty"`
	Limit        *int       `json:"limit,omitempty"`
}

// QuotaStatus 일일 매치 생성 한도 상태. 프리미엄은 Limit이 nil (무제한)
type QuotaStatus struct {
	Allowed      bool `json:"allowed"`
	MatchesToday int  `json:"matches_today"`
	Limit        *int `json:"limit,omitempty"`
}

type SendMessageRequest struct {
	Text string `json:"message_text" binding:"required"`
}

type UnlockAchieved struct {
	Level    int    `json:"level"`
	Unlocked string `json:"unlocked"`
}

type SendResult struct {
	Success        bool            `json:"success"`
	MessageID      string          `json:"message_id"`
	MessageCount   int             `json:"message_count"`
	UnlockAchieved *UnlockAchieved `json:"unlock_achieved,omitempty"`
	// NextUnlockAt 다음 단계에 필요한 누적 메시지 수. 최종 단계면 생략
	NextUnlockAt *int `json:"next_unlock_at,omitempty"`
}

// PartnerView 잠금 해제 단계에 따라 가려진 상대방 정보. nil 필드는 아직 공개되지 않음
type PartnerView struct {
	Alias       string  `json:"alias"`
	City        *string `json:"city,omitempty"`
	AgeBracket  *string `json:"age_bracket,omitempty"`
	Age         *int    `json:"age,omitempty"`
	Gender      *string `json:"gender,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
}

type MatchSummary struct {
	MatchID      string      `json:"match_id"`
	Partner      PartnerView `json:"partner"`
	MessageCount int         `json:"message_count"`
	UnlockLevel  int         `json:"unlock_level"`
	Status       MatchStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	ExpiresAt    time.Time   `json:"expires_at"`
}
