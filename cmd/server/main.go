package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/luvhive/luvhive-backend/internal/api"
	"github.com/luvhive/luvhive-backend/internal/config"
	"github.com/luvhive/luvhive-backend/internal/models"
	"github.com/luvhive/luvhive-backend/internal/repository"
	"github.com/luvhive/luvhive-backend/internal/service"
	"github.com/luvhive/luvhive-backend/internal/websocket"
	"github.com/luvhive/luvhive-backend/pkg/database"
	"github.com/luvhive/luvhive-backend/pkg/distributed"
	jwtutil "github.com/luvhive/luvhive-backend/pkg/jwt"
	"github.com/luvhive/luvhive-backend/pkg/logger"
	"github.com/luvhive/luvhive-backend/pkg/metrics"
	"github.com/luvhive/luvhive-backend/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// find-match 요청 제한 (사용자당 분당 10회)
const (
	findMatchLimit  = 10
	findMatchWindow = time.Minute
)

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting LuvHive Mystery Match",
		"port", cfg.Port,
		"env", cfg.Env,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mysteryMetrics := metrics.New(registry)

	// 저장소 (DATABASE_URL 없으면 인메모리)
	var (
		matchRepo repository.MatchRepository
		directory repository.UserDirectory
	)
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", "error", err)
		}
		matchRepo = repository.NewMatchRepository(db)
		directory = repository.NewUserDirectory(db)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		matchRepo = repository.NewMemoryMatchRepository()
		directory = repository.NewMemoryUserDirectory(demoProfiles(cfg.Env)...)
	}

	// Redis (없으면 단일 인스턴스 모드)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Invalid REDIS_URL", "error", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		defer redisClient.Close()
		logger.Info("Redis connected, running in clustered mode")
	}

	// WebSocket Hub
	hubOpts := websocket.HubOptions{
		Metrics:        mysteryMetrics,
		Logger:         logger.Named("hub"),
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if redisClient != nil {
		hubOpts.Presence = distributed.NewRedisPresence(redisClient, distributed.DefaultPresenceTTL)
	}
	hub := websocket.NewHub(hubOpts)
	go hub.Run(ctx)

	var (
		notifier         service.Notifier = hub
		relay            *distributed.EventRelay
		sweepLocker      service.SweepLocker
		messageLimiter   ratelimit.Limiter
		findMatchLimiter ratelimit.Limiter
	)
	if redisClient != nil {
		relay = distributed.NewEventRelay(redisClient, hub, logger.Named("relay"))
		if err := relay.Start(ctx); err != nil {
			logger.Fatal("Failed to start event relay", "error", err)
		}
		hub.SetPublisher(relay)
		notifier = relay

		sweepLocker = distributed.NewRedisLockManager(redisClient)

		redisLimiter := ratelimit.NewRedisRateLimiter(redisClient, "mystery:ratelimit:")
		messageLimiter = redisLimiter.Scoped(int(cfg.MessageRateCapacity), messageWindow(cfg))
		findMatchLimiter = redisLimiter.Scoped(findMatchLimit, findMatchWindow)
	} else {
		local := ratelimit.NewRateLimiter(cfg.MessageRateCapacity, cfg.MessageRateRefill)
		defer local.Stop()
		messageLimiter = local

		findLocal := ratelimit.NewRateLimiter(findMatchLimit, 1)
		defer findLocal.Stop()
		findMatchLimiter = findLocal
	}

	// Services
	quotaService := service.NewQuotaService(matchRepo, cfg.DailyMatchLimit, service.UTCClock)
	matchmakingService := service.NewMatchmakingService(
		matchRepo,
		directory,
		quotaService,
		mysteryMetrics,
		logger.Named("matchmaking"),
		service.UTCClock,
		cfg.MatchTTL,
	)
	matchService := service.NewMatchService(matchRepo, directory, service.UTCClock)
	chatService := service.NewChatService(matchRepo, service.ChatServiceOptions{
		Notifier: notifier,
		Presence: hub,
		Limiter:  messageLimiter,
		Metrics:  mysteryMetrics,
		Logger:   logger.Named("chat"),
		Clock:    service.UTCClock,
	})

	sweeper := service.NewExpirySweeper(
		matchRepo,
		sweepLocker,
		mysteryMetrics,
		logger.Named("sweeper"),
		service.UTCClock,
		cfg.SweepInterval,
	)
	sweeper.Start()
	defer sweeper.Stop()

	router := api.SetupRouter(cfg, api.Dependencies{
		Matchmaking:      matchmakingService,
		Matches:          matchService,
		Chat:             chatService,
		Hub:              hub,
		JWT:              jwtutil.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration),
		FindMatchLimiter: findMatchLimiter,
		FindMatchLimit:   findMatchLimit,
		Gatherer:         registry,
	})

	// 서버 설정 (WebSocket 연결은 Hijack 되므로 WriteTimeout의 영향을 받지 않는다)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown 대기
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// hub, relay 종료
	stop()
	if relay != nil {
		relay.Stop()
		relay.Wait()
	}

	logger.Info("Server exited")
}

// messageWindow Redis bucket의 window. capacity개가 refill 속도로 다시 차는 시간
func messageWindow(cfg *config.Config) time.Duration {
	if cfg.MessageRateRefill <= 0 {
		return time.Minute
	}
	window := time.Duration(cfg.MessageRateCapacity/cfg.MessageRateRefill) * time.Second
	if window < time.Second {
		window = time.Second
	}
	return window
}

// demoProfiles 인메모리 개발 모드에서 매칭해 볼 수 있는 프로필
func demoProfiles(env string) []*models.UserProfile {
	if env != "development" {
		return nil
	}
	return []*models.UserProfile{
		{ID: 1, DisplayName: "Minji", Age: 24, Gender: "female", City: "Seoul"},
		{ID: 2, DisplayName: "Joon", Age: 27, Gender: "male", City: "Busan"},
		{ID: 3, DisplayName: "Sora", Age: 31, Gender: "female", City: "Incheon", IsPremium: true},
		{ID: 4, DisplayName: "Hyun", Age: 29, Gender: "male", City: "Daejeon"},
		{ID: 5, DisplayName: "Yuna", Age: 22, Gender: "female", City: "Gwangju"},
		{ID: 6, DisplayName: "Taeho", Age: 35, Gender: "male", City: "Seoul", IsPremium: true},
	}
}
