package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/database"
	"github.com/stemsi/lessonflow/internal/handler"
	"github.com/stemsi/lessonflow/internal/logger"
	"github.com/stemsi/lessonflow/internal/repository"
	"github.com/stemsi/lessonflow/internal/router"
	"github.com/stemsi/lessonflow/internal/service"
	"github.com/stemsi/lessonflow/internal/validator"
	"github.com/stemsi/lessonflow/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("env", cfg.AppEnv).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Lessonflow")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	lessonRepo := repository.NewLessonRepository(pool)
	bookmarkRepo := repository.NewBookmarkRepository(pool)
	completionRepo := repository.NewCompletionRepository(pool)
	xpRepo := repository.NewXPRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	lessonService := service.NewLessonService(lessonRepo, rdb, cfg.LessonCacheTTL, log)
	playerService := service.NewPlayerService(lessonService, bookmarkRepo, completionRepo, rdb, cfg, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Lesson: handler.NewLessonHandler(lessonService, playerService, log),
		Events: handler.NewEventsHandler(playerService, log),
		Stream: handler.NewStreamHandler(playerService, log, cfg.AllowedOrigins),
		System: handler.NewSystemHandler(pool, rdb, playerService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	starters := []func(context.Context){
		worker.NewBookmarkWorker(rdb, bookmarkRepo, log).Start,
		worker.NewAwardWorker(rdb, xpRepo, log).Start,
		worker.NewCompletionWorker(rdb, completionRepo, log).Start,
	}
	for _, start := range starters {
		workers.Add(1)
		go func(start func(context.Context)) {
			defer workers.Done()
			start(workerCtx)
		}(start)
	}

	go playerService.StartJanitor(ctx)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published lessons into Redis BEFORE accepting traffic.
	if err := lessonService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, log, authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close live sessions so their bookmarks reach the queues.
	cancel()
	playerService.Shutdown(shutdownCtx)

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
