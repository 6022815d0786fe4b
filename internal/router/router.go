package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Candidate *handler.CandidateHandler
	Session   *handler.SessionHandler
	Proctor   *handler.ProctorHandler
	System    *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// The returned limiter must be stopped on shutdown.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) (*gin.Engine, *middleware.RateLimiter) {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Candidate Group (JWT) ──────────────────────────────────────
	candidateAPI := router.Group("/api/v1/candidate")
	candidateAPI.Use(middleware.RequireCandidateJWT(auth))
	{
		catalog := candidateAPI.Group("/modules", middleware.CacheControl(60))
		catalog.GET("", handlers.Candidate.ListModules)
		catalog.GET("/:id", handlers.Candidate.GetModule)

		history := candidateAPI.Group("/attempts", middleware.NoStore())
		history.GET("", handlers.Candidate.ListAttempts)
		history.GET("/:id", handlers.Candidate.GetAttempt)
	}

	// ─── 2. WebSocket Group (Candidate WS Auth, rate limited per user) ─
	wsLimiter := middleware.NewRateLimiter(cfg.WSRateLimitPerMinute, time.Minute).ByUser()
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireCandidateWSAuth(auth), wsLimiter.Middleware())
	{
		ws.GET("/candidate/modules/:module_id/session", handlers.Session.SessionStream)
	}

	// ─── 3. Proctor Group (JWT, ?token= accepted for EventSource) ──────
	proctorAPI := router.Group("/api/v1/proctor")
	proctorAPI.Use(middleware.RequireProctorJWT(auth), middleware.NoStore())
	{
		proctorAPI.GET("/modules", handlers.Candidate.ListModules)
		proctorAPI.GET("/modules/:id/feed", handlers.Proctor.ModuleFeedSSE)
		proctorAPI.GET("/sessions/:id/violations", handlers.Proctor.SessionViolations)
		proctorAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router, wsLimiter
}
