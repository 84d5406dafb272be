package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/handler"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
)

// questionSetMaxAge is how long shared caches may keep a question set.
const questionSetMaxAge = 300

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Attempt     *handler.AttemptHandler
	QuestionSet *handler.QuestionSetHandler
	WS          *handler.WSHandler
	System      *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil to disable rate limiting.
func SetupRouter(
	tokens *service.TokenService,
	limiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Question sets (public authoring + lookup) ─────────────────
	sets := router.Group("/api/v1/question-sets")
	{
		sets.POST("", handlers.QuestionSet.Create)
		sets.GET("/:question_set_id", middleware.CacheControl(questionSetMaxAge), handlers.QuestionSet.Get)
	}

	// ─── 2. Attempts ──────────────────────────────────────────────────
	attempts := router.Group("/api/v1/attempts")
	attempts.Use(middleware.NoStore())
	{
		start := []gin.HandlerFunc{}
		if limiter != nil {
			start = append(start, limiter.Middleware())
		}
		attempts.POST("", append(start, handlers.Attempt.Start)...)

		// Resume reissues the token, so a superseded token may still resume.
		attempts.POST("/:attempt_id/resume", middleware.RequireAttemptToken(tokens), handlers.Attempt.Resume)

		owned := attempts.Group("/:attempt_id")
		owned.Use(middleware.RequireAttemptToken(tokens), middleware.RequireActiveToken(tokens))
		{
			owned.GET("", handlers.Attempt.Get)
			owned.GET("/result", handlers.Attempt.Result)
			owned.GET("/review", handlers.Attempt.Review)
			owned.GET("/review/analysis", handlers.Attempt.Analysis)
			owned.DELETE("", handlers.Attempt.Reset)
		}
	}

	// ─── 3. WebSocket (token via ?token=) ─────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireAttemptToken(tokens), middleware.RequireActiveToken(tokens))
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. System ────────────────────────────────────────────────────
	router.GET("/api/v1/system/metrics", handlers.System.SystemMetricsSSE)

	return router
}
