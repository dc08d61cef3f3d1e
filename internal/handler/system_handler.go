package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/response"
	"github.com/stemsi/lessonflow/internal/service"
)

const (
	metricsInterval = 7 * time.Second
	pingTimeout     = 2 * time.Second
)

// SystemHandler reports liveness and streams runtime metrics.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	player    *service.PlayerService
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, player *service.PlayerService, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		player:    player,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`

	// Lessons
	ActiveSessions int `json:"active_sessions"`

	// Worker Queues
	QueueBookmarks   int64 `json:"queue_bookmarks"`
	QueueAwards      int64 `json:"queue_awards"`
	QueueCompletions int64 `json:"queue_completions"`
}

// Health godoc
// GET /health
// Pings PostgreSQL and Redis; 503 when either is down.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	status := gin.H{"status": "ok", "postgres": "ok", "redis": "ok"}
	code := http.StatusOK
	if h.pool != nil {
		if err := h.pool.Ping(ctx); err != nil {
			status["postgres"] = "down"
			status["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		status["redis"] = "down"
		status["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	response.Success(c, code, status)
}

// SystemMetricsSSE godoc
// GET /internal/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	c.SSEvent("metrics", h.collect(c.Request.Context()))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp:      time.Now().Unix(),
		Uptime:         formatDuration(time.Since(h.startTime)),
		GoVersion:      runtime.Version(),
		Goroutines:     runtime.NumGoroutine(),
		ActiveSessions: h.player.Active(),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.Sys
	m.NumGC = ms.NumGC

	// ── Worker Queues (pipelined LLEN) ──
	pipe := h.rdb.Pipeline()
	bookmarks := pipe.LLen(ctx, config.WorkerKey.PersistBookmarksQueue)
	awards := pipe.LLen(ctx, config.WorkerKey.PersistAwardsQueue)
	completions := pipe.LLen(ctx, config.WorkerKey.PersistCompletionsQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		m.QueueBookmarks, _ = bookmarks.Result()
		m.QueueAwards, _ = awards.Result()
		m.QueueCompletions, _ = completions.Result()
	} else {
		h.log.Warn().Err(err).Msg("Failed to read queue depths")
	}

	return m
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
