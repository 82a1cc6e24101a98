package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/luvhive/luvhive-backend/pkg/logger"
)

type DB struct {
	*sql.DB
}

// Connect 데이터베이스 연결
func Connect(databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is empty")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 연결 풀 설정
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connected successfully")

	return &DB{db}, nil
}

// WithTx 트랜잭션 안에서 fn 실행. fn이 에러를 반환하면 롤백한다.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Warn("Transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Migrate Mystery Match 테이블 생성 (users 테이블은 프로필 서비스 소유)
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close 데이터베이스 연결 종료
func (db *DB) Close() error {
	return db.DB.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS mystery_matches (
	id               UUID PRIMARY KEY,
	participant_a_id BIGINT NOT NULL,
	participant_b_id BIGINT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL,
	message_count    INTEGER NOT NULL DEFAULT 0,
	unlock_level     SMALLINT NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'active',
	CHECK (participant_a_id < participant_b_id)
);

CREATE INDEX IF NOT EXISTS idx_mystery_matches_a ON mystery_matches (participant_a_id, created_at);
CREATE INDEX IF NOT EXISTS idx_mystery_matches_b ON mystery_matches (participant_b_id, created_at);
CREATE INDEX IF NOT EXISTS idx_mystery_matches_expiry ON mystery_matches (status, expires_at);

CREATE TABLE IF NOT EXISTS mystery_messages (
	id        UUID PRIMARY KEY,
	match_id  UUID NOT NULL REFERENCES mystery_matches(id),
	sender_id BIGINT NOT NULL,
	text      TEXT NOT NULL,
	sent_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mystery_messages_match ON mystery_messages (match_id, sent_at DESC);
`
