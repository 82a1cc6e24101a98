package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/luvhive/luvhive-backend/internal/api/handlers"
	"github.com/luvhive/luvhive-backend/internal/api/middleware"
	"github.com/luvhive/luvhive-backend/internal/config"
	"github.com/luvhive/luvhive-backend/internal/service"
	"github.com/luvhive/luvhive-backend/internal/websocket"
	jwtutil "github.com/luvhive/luvhive-backend/pkg/jwt"
	"github.com/luvhive/luvhive-backend/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies 라우터가 사용하는 서비스와 인프라 (cmd/server에서 구성)
type Dependencies struct {
	Matchmaking *service.MatchmakingService
	Matches     *service.MatchService
	Chat        *service.ChatService
	Hub         *websocket.Hub
	JWT         *jwtutil.JWTManager
	// FindMatchLimiter 매치 찾기 요청 제한. nil이면 제한 없음
	FindMatchLimiter ratelimit.Limiter
	FindMatchLimit   int64
	Gatherer         prometheus.Gatherer
}

// SetupRouter API 라우터 설정
func SetupRouter(cfg *config.Config, d Dependencies) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	mysteryHandler := handlers.NewMysteryHandler(d.Matchmaking, d.Matches)
	chatHandler := handlers.NewChatHandler(d.Chat, d.Hub)

	router.GET("/health", handlers.HealthCheck)
	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	mystery := v1.Group("/mystery")
	mystery.Use(middleware.Auth(d.JWT))
	{
		findMatch := []gin.HandlerFunc{}
		if d.FindMatchLimiter != nil {
			findMatch = append(findMatch, middleware.RateLimit(middleware.RateLimitConfig{
				Limiter: d.FindMatchLimiter,
				Limit:   d.FindMatchLimit,
				Name:    "find-match",
				KeyFunc: middleware.UserKeyFunc,
			}))
		}
		mystery.POST("/find-match", append(findMatch, mysteryHandler.FindMatch)...)
		mystery.GET("/quota", mysteryHandler.GetQuota)

		matches := mystery.Group("/matches")
		{
			matches.GET("", mysteryHandler.ListMatches)
			matches.POST("/:id/messages", chatHandler.SendMessage)
			matches.GET("/:id/messages", chatHandler.ListMessages)
			matches.GET("/:id/online", chatHandler.GetOnlineStatus)
			matches.GET("/:id/ws", chatHandler.Connect)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	})

	return router
}
