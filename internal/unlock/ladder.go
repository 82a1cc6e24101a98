// Package unlock maps cumulative chat message counts to identity unlock levels
// and projects a partner's profile through the level reached.
package unlock

import (
	"fmt"
	"hash/fnv"

	"github.com/luvhive/luvhive-backend/internal/models"
)

// MaxLevel 최종 단계 (실명 공개)
const MaxLevel = 4

// thresholds[i]는 레벨 i+1에 필요한 누적 메시지 수
var thresholds = [MaxLevel]int{20, 60, 100, 150}

var reveals = [MaxLevel + 1]string{
	"",
	"Partner's city revealed",
	"Partner's age range revealed",
	"Partner's exact age and gender revealed",
	"Partner's name revealed",
}

// LevelFor 누적 메시지 수에 해당하는 잠금 해제 레벨 (0-4)
func LevelFor(messageCount int) int {
	level := 0
	for _, t := range thresholds {
		if messageCount < t {
			break
		}
		level++
	}
	return level
}

// Threshold 해당 레벨에 도달하기 위한 메시지 수. 범위를 벗어나면 false
func Threshold(level int) (int, bool) {
	if level < 1 || level > MaxLevel {
		return 0, false
	}
	return thresholds[level-1], true
}

// Reveal 레벨이 공개하는 내용 설명
func Reveal(level int) string {
	if level < 0 || level > MaxLevel {
		return ""
	}
	return reveals[level]
}

// Transition reports the level reached by moving from prevCount to newCount
// messages, and whether it is above prevLevel. prevLevel is the stored level so
// a level that was already announced never fires again.
func Transition(prevLevel, newCount int) (int, bool) {
	level := LevelFor(newCount)
	return level, level > prevLevel
}

// ProjectPartner is the only place partner directory fields leave the service.
// Fields above the reached level stay nil.
func ProjectPartner(matchID string, partner *models.UserProfile, level int) models.PartnerView {
	view := models.PartnerView{Alias: Alias(matchID, partner.ID)}

	if level >= 1 {
		city := partner.City
		view.City = &city
	}
	if level >= 2 {
		bracket := AgeBracket(partner.Age)
		view.AgeBracket = &bracket
	}
	if level >= 3 {
		age, gender := partner.Age, partner.Gender
		view.Age = &age
		view.Gender = &gender
	}
	if level >= MaxLevel {
		name := partner.DisplayName
		view.DisplayName = &name
	}
	return view
}

// Alias 매치마다 고정된 익명 별칭. 사용자 ID를 노출하지 않도록 해시한다.
func Alias(matchID string, partnerID int64) string {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s:%d", matchID, partnerID)
	return fmt.Sprintf("Mystery #%04d", h.Sum32()%10000)
}

// AgeBracket 5세 단위 구간. 25세 미만은 18-24 하나로 묶는다.
func AgeBracket(age int) string {
	if age < 25 {
		return "18-24"
	}
	lower := age / 5 * 5
	return fmt.Sprintf("%d-%d", lower, lower+4)
}
