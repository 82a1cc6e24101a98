package models

// UserProfile 사용자 디렉터리 레코드 (프로필 서비스 소유, 읽기 전용)
type UserProfile struct {
	ID          int64  `json:"id" db:"id"`
	DisplayName string `json:"display_name" db:"display_name"`
	Age         int    `json:"age" db:"age"`
	Gender      string `json:"gender" db:"gender"`
	City        string `json:"city" db:"city"`
	IsPremium   bool   `json:"is_premium" db:"is_premium"`
}
