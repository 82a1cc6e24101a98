package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/luvhive/luvhive-backend/internal/models"
)

// MemoryMatchRepository DATABASE_URL 없이 실행할 때와 테스트용 인메모리 저장소.
// 하나의 뮤텍스로 모든 변경을 직렬화해 Postgres 트랜잭션과 같은 원자성을 보장한다.
type MemoryMatchRepository struct {
	mu       sync.Mutex
	matches  map[string]*models.Match
	messages map[string][]*models.ChatMessage
}

func NewMemoryMatchRepository() *MemoryMatchRepository {
	return &MemoryMatchRepository{
		matches:  make(map[string]*models.Match),
		messages: make(map[string][]*models.ChatMessage),
	}
}

func (r *MemoryMatchRepository) CreateMatch(_ context.Context, m *models.Match, now time.Time, guard QuotaGuard) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.matches {
		if existing.ParticipantAID == m.ParticipantAID &&
			existing.ParticipantBID == m.ParticipantBID &&
			!existing.IsExpired(now) {
			return ErrPairActive
		}
	}

	for _, userID := range guard.Limited {
		count := r.countLocked(userID, guard.DayStart, guard.DayEnd)
		if count >= guard.Limit {
			return &QuotaExceededError{UserID: userID, MatchesToday: count}
		}
	}

	stored := *m
	r.matches[m.ID] = &stored
	return nil
}

func (r *MemoryMatchRepository) FindByID(_ context.Context, id string) (*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryMatchRepository) FindByParticipant(_ context.Context, userID int64, expiresAfter time.Time) ([]*models.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Match
	for _, m := range r.matches {
		if m.HasParticipant(userID) && m.ExpiresAt.After(expiresAfter) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryMatchRepository) ActivePartnerIDs(_ context.Context, userID int64, now time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int64
	for _, m := range r.matches {
		if m.IsExpired(now) {
			continue
		}
		if partner, ok := m.PartnerOf(userID); ok {
			ids = append(ids, partner)
		}
	}
	return ids, nil
}

func (r *MemoryMatchRepository) CountCreatedBetween(_ context.Context, userID int64, from, to time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked(userID, from, to), nil
}

func (r *MemoryMatchRepository) UsersAtLimit(_ context.Context, from, to time.Time, limit int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[int64]int)
	for _, m := range r.matches {
		if inDay(m.CreatedAt, from, to) {
			counts[m.ParticipantAID]++
			counts[m.ParticipantBID]++
		}
	}

	var ids []int64
	for id, n := range counts {
		if n >= limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MemoryMatchRepository) countLocked(userID int64, from, to time.Time) int {
	count := 0
	for _, m := range r.matches {
		if m.HasParticipant(userID) && inDay(m.CreatedAt, from, to) {
			count++
		}
	}
	return count
}

func inDay(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func (r *MemoryMatchRepository) AppendMessage(_ context.Context, matchID string, apply MessageApplier) (*models.Match, *models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.matches[matchID]
	if !ok {
		return nil, nil, ErrNotFound
	}

	// apply가 실패하면 저장된 값은 그대로 두어야 하므로 복사본에 적용
	working := *stored
	msg, err := apply(&working)
	if err != nil {
		return nil, nil, err
	}

	*stored = working
	r.messages[matchID] = append(r.messages[matchID], msg)

	result := working
	return &result, msg, nil
}

func (r *MemoryMatchRepository) ListMessages(_ context.Context, matchID string, before models.MessageCursor, limit int) ([]*models.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := pie.Filter(r.messages[matchID], before.Before)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.After(out[j].SentAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryMatchRepository) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, m := range r.matches {
		if m.Status == models.MatchStatusActive && m.ExpiresAt.Before(now) {
			m.Status = models.MatchStatusExpired
			n++
		}
	}
	return n, nil
}

// MemoryUserDirectory 개발/테스트용 사용자 디렉터리
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[int64]*models.UserProfile
}

func NewMemoryUserDirectory(users ...*models.UserProfile) *MemoryUserDirectory {
	d := &MemoryUserDirectory{users: make(map[int64]*models.UserProfile)}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// Put 프로필 추가/교체
func (d *MemoryUserDirectory) Put(u *models.UserProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *u
	d.users[u.ID] = &cp
}

func (d *MemoryUserDirectory) GetUser(_ context.Context, id int64) (*models.UserProfile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (d *MemoryUserDirectory) ListCandidates(_ context.Context, q CandidateQuery) ([]*models.UserProfile, error) {
	d.mu.RLock()
	all := make([]*models.UserProfile, 0, len(d.users))
	for _, u := range d.users {
		cp := *u
		all = append(all, &cp)
	}
	d.mu.RUnlock()

	candidates := pie.Filter(all, func(u *models.UserProfile) bool {
		if pie.Contains(q.ExcludeIDs, u.ID) {
			return false
		}
		if !u.IsPremium && pie.Contains(q.ExcludeFreeIDs, u.ID) {
			return false
		}
		if q.Gender != "" && !strings.EqualFold(u.Gender, q.Gender) {
			return false
		}
		if q.AgeMin > 0 && u.Age < q.AgeMin {
			return false
		}
		if q.AgeMax > 0 && u.Age > q.AgeMax {
			return false
		}
		return true
	})

	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	return candidates, nil
}
