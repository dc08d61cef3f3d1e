package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/response"
	"github.com/stemsi/lessonflow/internal/service"
)

const keepAliveInterval = 30 * time.Second

// EventsHandler pushes session events to REST clients over SSE.
type EventsHandler struct {
	player *service.PlayerService
	log    zerolog.Logger
}

func NewEventsHandler(player *service.PlayerService, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		player: player,
		log:    log.With().Str("component", "events_handler").Logger(),
	}
}

// LessonEventsSSE godoc
// GET /api/v1/lessons/:lesson_id/events
// Streams notifications, XP, progress and audio resumes of an open session.
func (h *EventsHandler) LessonEventsSSE(c *gin.Context) {
	learner, lessonID, ok := target(c)
	if !ok {
		return
	}

	st, err := h.player.State(learner, lessonID)
	if err != nil {
		status, code := classify(err)
		response.Fail(c, status, code)
		return
	}
	events, unsubscribe, err := h.player.Subscribe(learner, lessonID)
	if err != nil {
		status, code := classify(err)
		response.Fail(c, status, code)
		return
	}
	defer unsubscribe()

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent("snapshot", st)
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	h.log.Debug().Str("learner_id", learner.ID).Str("lesson_id", lessonID.String()).Msg("SSE attached")

	for {
		select {
		case <-reqCtx.Done():
			return

		case m, open := <-events:
			if !open {
				// Session closed or evicted.
				c.SSEvent("closed", nil)
				c.Writer.Flush()
				return
			}
			c.SSEvent(string(m.Event), m.Data)
			c.Writer.Flush()

		case <-keepAlive.C:
			c.SSEvent("ping", nil)
			c.Writer.Flush()
		}
	}
}
