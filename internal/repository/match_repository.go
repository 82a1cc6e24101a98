package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/pkg/database"
)

type PostgresMatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *PostgresMatchRepository {
	return &PostgresMatchRepository{db: db}
}

const matchColumns = `id, participant_a_id, participant_b_id, created_at, expires_at, message_count, unlock_level, status`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*models.Match, error) {
	m := &models.Match{}
	err := row.Scan(
		&m.ID,
		&m.ParticipantAID,
		&m.ParticipantBID,
		&m.CreatedAt,
		&m.ExpiresAt,
		&m.MessageCount,
		&m.UnlockLevel,
		&m.Status,
	)
	return m, err
}

// CreateMatch 쿼터 재검사 + 활성 쌍 중복 검사 + INSERT 를 하나의 트랜잭션에서 처리
// 두 참가자에 대해 advisory lock을 ID 오름차순으로 잡아 동시 요청을 직렬화한다.
func (r *PostgresMatchRepository) CreateMatch(ctx context.Context, m *models.Match, now time.Time, guard QuotaGuard) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range []int64{m.ParticipantAID, m.ParticipantBID} {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, id); err != nil {
				return fmt.Errorf("failed to lock participant %d: %w", id, err)
			}
		}

		var active bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM mystery_matches
				WHERE participant_a_id = $1 AND participant_b_id = $2
				  AND status = 'active' AND expires_at > $3
			)
		`, m.ParticipantAID, m.ParticipantBID, now).Scan(&active)
		if err != nil {
			return fmt.Errorf("failed to check active pair: %w", err)
		}
		if active {
			return ErrPairActive
		}

		for _, userID := range guard.Limited {
			var count int
			err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM mystery_matches
				WHERE (participant_a_id = $1 OR participant_b_id = $1)
				  AND created_at >= $2 AND created_at < $3
			`, userID, guard.DayStart, guard.DayEnd).Scan(&count)
			if err != nil {
				return fmt.Errorf("failed to count daily matches: %w", err)
			}
			if count >= guard.Limit {
				return &QuotaExceededError{UserID: userID, MatchesToday: count}
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO mystery_matches (`+matchColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, m.ID, m.ParticipantAID, m.ParticipantBID, m.CreatedAt, m.ExpiresAt, m.MessageCount, m.UnlockLevel, m.Status)
		if err != nil {
			return fmt.Errorf("failed to create match: %w", err)
		}
		return nil
	})
}

// FindByID ID로 매치 찾기
func (r *PostgresMatchRepository) FindByID(ctx context.Context, id string) (*models.Match, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM mystery_matches WHERE id = $1`, id)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find match: %w", err)
	}
	return m, nil
}

// FindByParticipant 사용자의 매치 목록
func (r *PostgresMatchRepository) FindByParticipant(ctx context.Context, userID int64, expiresAfter time.Time) ([]*models.Match, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+matchColumns+`
		FROM mystery_matches
		WHERE (participant_a_id = $1 OR participant_b_id = $1)
		  AND expires_at > $2
		ORDER BY created_at DESC
	`, userID, expiresAfter)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ActivePartnerIDs 현재 활성 매치 상대 목록 (후보 제외용)
func (r *PostgresMatchRepository) ActivePartnerIDs(ctx context.Context, userID int64, now time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT CASE WHEN participant_a_id = $1 THEN participant_b_id ELSE participant_a_id END
		FROM mystery_matches
		WHERE (participant_a_id = $1 OR participant_b_id = $1)
		  AND status = 'active' AND expires_at > $2
	`, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query active partners: %w", err)
	}
	return scanIDs(rows)
}

func (r *PostgresMatchRepository) CountCreatedBetween(ctx context.Context, userID int64, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mystery_matches
		WHERE (participant_a_id = $1 OR participant_b_id = $1)
		  AND created_at >= $2 AND created_at < $3
	`, userID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches: %w", err)
	}
	return count, nil
}

func (r *PostgresMatchRepository) UsersAtLimit(ctx context.Context, from, to time.Time, limit int) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM (
			SELECT participant_a_id AS user_id FROM mystery_matches WHERE created_at >= $1 AND created_at < $2
			UNION ALL
			SELECT participant_b_id FROM mystery_matches WHERE created_at >= $1 AND created_at < $2
		) p
		GROUP BY user_id
		HAVING COUNT(*) >= $3
	`, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query users at limit: %w", err)
	}
	return scanIDs(rows)
}

// AppendMessage 매치 행을 FOR UPDATE로 잠근 뒤 apply로 검증/카운트 증가, 메시지 저장
func (r *PostgresMatchRepository) AppendMessage(ctx context.Context, matchID string, apply MessageApplier) (*models.Match, *models.ChatMessage, error) {
	var (
		match *models.Match
		msg   *models.ChatMessage
	)

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM mystery_matches WHERE id = $1 FOR UPDATE`, matchID)
		m, err := scanMatch(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock match: %w", err)
		}

		out, err := apply(m)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mystery_messages (id, match_id, sender_id, text, sent_at)
			VALUES ($1, $2, $3, $4, $5)
		`, out.ID, out.MatchID, out.SenderID, out.Text, out.SentAt); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE mystery_matches SET message_count = $2, unlock_level = $3 WHERE id = $1
		`, m.ID, m.MessageCount, m.UnlockLevel); err != nil {
			return fmt.Errorf("failed to update match counters: %w", err)
		}

		match, msg = m, out
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return match, msg, nil
}

// ListMessages (sent_at, id) 커서 이전 메시지, 최신순
func (r *PostgresMatchRepository) ListMessages(ctx context.Context, matchID string, before models.MessageCursor, limit int) ([]*models.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, match_id, sender_id, text, sent_at
		FROM mystery_messages
		WHERE match_id = $1 AND (sent_at, id::text) < ($2, $3)
		ORDER BY sent_at DESC, id DESC
		LIMIT $4
	`, matchID, before.SentAt, before.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		msg := &models.ChatMessage{}
		if err := rows.Scan(&msg.ID, &msg.MatchID, &msg.SenderID, &msg.Text, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ExpireStale 만료 시각이 지난 활성 매치를 expired로 표시
func (r *PostgresMatchRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE mystery_matches SET status = 'expired'
		WHERE status = 'active' AND expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire matches: %w", err)
	}
	return result.RowsAffected()
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PostgresUserDirectory users 테이블 읽기 전용 조회
type PostgresUserDirectory struct {
	db *database.DB
}

func NewUserDirectory(db *database.DB) *PostgresUserDirectory {
	return &PostgresUserDirectory{db: db}
}

// GetUser ID로 프로필 조회. 없으면 nil, nil
func (d *PostgresUserDirectory) GetUser(ctx context.Context, id int64) (*models.UserProfile, error) {
	u := &models.UserProfile{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, display_name, age, gender, city, is_premium
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.DisplayName, &u.Age, &u.Gender, &u.City, &u.IsPremium)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// ListCandidates 필터에 맞는 후보를 무작위 순서로 최대 q.Limit명
func (d *PostgresUserDirectory) ListCandidates(ctx context.Context, q CandidateQuery) ([]*models.UserProfile, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}
	exclude := q.ExcludeIDs
	if exclude == nil {
		exclude = []int64{}
	}
	excludeFree := q.ExcludeFreeIDs
	if excludeFree == nil {
		excludeFree = []int64{}
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, display_name, age, gender, city, is_premium
		FROM users
		WHERE NOT (id = ANY($1))
		  AND ($2 = '' OR LOWER(gender) = LOWER($2))
		  AND ($3 = 0 OR age >= $3)
		  AND ($4 = 0 OR age <= $4)
		  AND (is_premium OR NOT (id = ANY($6)))
		ORDER BY RANDOM()
		LIMIT $5
	`, pq.Array(exclude), q.Gender, q.AgeMin, q.AgeMax, limit, pq.Array(excludeFree))
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var users []*models.UserProfile
	for rows.Next() {
		u := &models.UserProfile{}
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Age, &u.Gender, &u.City, &u.IsPremium); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
