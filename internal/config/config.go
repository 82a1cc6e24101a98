package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database (비어 있으면 인메모리 저장소로 동작)
	DatabaseURL string

	// Redis (비어 있으면 단일 인스턴스 모드)
	RedisURL string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Mystery Match
	DailyMatchLimit int
	MatchTTL        time.Duration
	SweepInterval   time.Duration

	// 채팅 메시지 전송 rate limit (매치+사용자 단위 token bucket)
	MessageRateCapacity int64
	MessageRateRefill   int64
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		JWTSecret:           getEnv("JWT_SECRET", "your-secret-key"),
		JWTExpiration:       parseDuration(getEnv("JWT_EXPIRATION", "24h"), 24*time.Hour),
		CORSAllowedOrigins:  parseList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		DailyMatchLimit:     parseInt(getEnv("MYSTERY_DAILY_LIMIT", "3"), 3),
		MatchTTL:            parseDuration(getEnv("MYSTERY_MATCH_TTL", "24h"), 24*time.Hour),
		SweepInterval:       parseDuration(getEnv("MYSTERY_SWEEP_INTERVAL", "1m"), time.Minute),
		MessageRateCapacity: int64(parseInt(getEnv("MESSAGE_RATE_CAPACITY", "10"), 10)),
		MessageRateRefill:   int64(parseInt(getEnv("MESSAGE_RATE_REFILL", "2"), 2)),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
