package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/handler"
	"github.com/stemsi/lessonflow/internal/middleware"
	"github.com/stemsi/lessonflow/internal/response"
	"github.com/stemsi/lessonflow/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Lesson *handler.LessonHandler
	Events *handler.EventsHandler
	Stream *handler.StreamHandler
	System *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work owned by middlewares.
func SetupRouter(
	ctx context.Context,
	log zerolog.Logger,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
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
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Brotli())

	router.GET("/health", handlers.System.Health)
	if !cfg.IsProduction() {
		router.GET("/internal/metrics", handlers.System.SystemMetricsSSE)
	}

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimitPerMinute, time.Minute)

	// ─── 1. Lesson Group (Learner JWT, Rate Limited) ───────────────────
	lessons := router.Group("/api/v1/lessons")
	lessons.Use(middleware.RequireLearnerJWT(authService), limiter.Middleware())
	{
		lessons.GET("", middleware.CacheControl(60), handlers.Lesson.ListLessons)

		session := lessons.Group("/:lesson_id")
		session.Use(middleware.NoStore())
		{
			session.POST("/session", handlers.Lesson.OpenLesson)
			session.GET("/session", handlers.Lesson.GetState)
			session.GET("/session/render", handlers.Lesson.RenderLesson)
			session.DELETE("/session", handlers.Lesson.CloseLesson)
			session.GET("/events", handlers.Events.LessonEventsSSE)

			session.POST("/blocks/:index/complete", handlers.Lesson.CompleteBlock)
			session.POST("/blocks/:index/viewport", handlers.Lesson.EnterViewport)
			session.POST("/blocks/:index/retry", handlers.Lesson.RetryBlock)
			session.POST("/progress", handlers.Lesson.RecordProgress)

			session.POST("/audio/play", handlers.Lesson.PlayAudio)
			session.POST("/audio/pause", handlers.Lesson.PauseAudio)
			session.POST("/audio/seek", handlers.Lesson.SeekAudio)
		}
	}

	// ─── 2. WebSocket Group (Learner JWT via ?token=) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireLearnerJWT(authService))
	{
		ws.GET("/lessons/:lesson_id/stream", handlers.Stream.LessonStream)
	}

	return router
}
