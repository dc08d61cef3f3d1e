package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/engine"
	"github.com/stemsi/lessonflow/internal/middleware"
	"github.com/stemsi/lessonflow/internal/model"
	"github.com/stemsi/lessonflow/internal/response"
	"github.com/stemsi/lessonflow/internal/service"
	"github.com/stemsi/lessonflow/internal/validator"
)

// LessonHandler exposes the lesson player over REST. Clients that want
// pushed events (audio resume, notifications) use StreamHandler instead.
type LessonHandler struct {
	lessons *service.LessonService
	player  *service.PlayerService
	log     zerolog.Logger
}

// NewLessonHandler creates a new LessonHandler.
func NewLessonHandler(lessons *service.LessonService, player *service.PlayerService, log zerolog.Logger) *LessonHandler {
	return &LessonHandler{
		lessons: lessons,
		player:  player,
		log:     log.With().Str("component", "lesson_handler").Logger(),
	}
}

// fail writes the error response matching err. Internal errors are logged.
func (h *LessonHandler) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	response.Fail(c, status, code)
}

// target resolves the learner and lesson of the request. On failure the
// response has already been written.
func target(c *gin.Context) (service.Learner, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return service.Learner{}, uuid.Nil, false
	}
	lessonID, err := uuid.Parse(c.Param("lesson_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return service.Learner{}, uuid.Nil, false
	}
	return claims.Learner(), lessonID, true
}

func blockIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return index, true
}

// ListLessons godoc
// GET /api/v1/lessons
// Returns every published lesson.
func (h *LessonHandler) ListLessons(c *gin.Context) {
	lessons, err := h.lessons.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"lessons": lessons})
}

// OpenLesson godoc
// POST /api/v1/lessons/:lesson_id/session
// Starts or rejoins the learner's player for the lesson, resuming from the last bookmark.
func (h *LessonHandler) OpenLesson(c *gin.Context) {
	learner, lessonID, ok := target(c)
	if !ok {
		return
	}

	opened, err := h.player.Open(c.Request.Context(), learner, lessonID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, opened)
}

// GetState godoc
// GET /api/v1/lessons/:lesson_id/session
func (h *LessonHandler) GetState(c *gin.Context) {
	learner, lessonID, ok := target(c)
	if !ok {
		return
	}

	st, err := h.player.State(learner, lessonID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, st)
}

// RenderLesson godoc
// GET /api/v1/lessons/:lesson_id/session/render
// Returns the sections and blocks as they should currently be displayed.
func (h *LessonHandler) RenderLesson(c *gin.Context) {
	learner, lessonID, ok := target(c)
	if !ok {
		return
	}

	rl, err := h.player.Render(learner, lessonID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, rl)
}

// CloseLesson godoc
// DELETE /api/v1/lessons/:lesson_id/session
// Stops audio, saves the bookmark and releases the player.
func (h *LessonHandler) CloseLesson(c *gin.Context) {
	learner, lessonID, ok := target(c)
	if !ok {
		return
	}

	if err := h.player.Exit(c.Request.Context(), learner, lessonID); err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "closed"})
}

// CompleteBlock godoc
// POST /api/v1/lessons/:lesson_id/blocks/:index/complete
func (h *LessonHandler) CompleteBlock(c *gin.Context) {
	learner, lessonID, ok := target(c)
	if !ok {
		return
	}
	index, ok := blockIndex(c)
	if !ok {
		return
	}

	var req model.CompleteBlockRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	u, err := h.player.Complete(c.Request.Context(), learner, lessonID, index, req.CompletionData())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, u)
}

// EnterViewport godoc
// POST /api/v1/lessons/:lesson_id/blocks/:index/viewport
// Reports a block scrolled into view; returns the blocks to mount.
func (h *LessonHandler) EnterViewport(c *gin.Context) {
	learner, lessonID, ok := target(c)
	if !ok {
		return
	}
	index, ok := blockIndex(c)
	if !ok {
		return
	}

	u, err := h.player.Viewport(learner, lessonID, index)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, u)
}

// RetryBlock godoc
// POST /api/v1/lessons/:lesson_id/blocks/:index/retry
func (h *LessonHandler) RetryBlock(c *gin.Context) {
	learner, lessonID, ok := target(c)
	if !ok {
		return
	}
	index, ok := blockIndex(c)
	if !ok {
		return
	}

	rb, err := h.player.Retry(learner, lessonID, index)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, rb)
}

// RecordProgress godoc
// POST /api/v1/lessons/:lesson_id/progress
func (h *LessonHandler) RecordProgress(c *gin.Context) {
	learner, lessonID, ok := target(c)
	if !ok {
		return
	}

	var req model.ProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	u, err := h.player.Progress(c.Request.Context(), learner, lessonID, *req.Percentage, req.ScrollOffset)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, u)
}

// PlayAudio godoc
// POST /api/v1/lessons/:lesson_id/audio/play
func (h *LessonHandler) PlayAudio(c *gin.Context) {
	h.audio(c, func(l service.Learner, id uuid.UUID) (engine.Update, error) {
		return h.player.Play(l, id)
	})
}

// PauseAudio godoc
// POST /api/v1/lessons/:lesson_id/audio/pause
func (h *LessonHandler) PauseAudio(c *gin.Context) {
	h.audio(c, func(l service.Learner, id uuid.UUID) (engine.Update, error) {
		return h.player.Pause(l, id)
	})
}

// SeekAudio godoc
// POST /api/v1/lessons/:lesson_id/audio/seek
func (h *LessonHandler) SeekAudio(c *gin.Context) {
	var req model.SeekRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	h.audio(c, func(l service.Learner, id uuid.UUID) (engine.Update, error) {
		return h.player.Seek(c.Request.Context(), l, id, *req.Time)
	})
}

func (h *LessonHandler) audio(c *gin.Context, fn func(service.Learner, uuid.UUID) (engine.Update, error)) {
	learner, lessonID, ok := target(c)
	if !ok {
		return
	}

	u, err := fn(learner, lessonID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, u)
}
