package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/engine"
	"github.com/stemsi/lessonflow/internal/model"
	"github.com/stemsi/lessonflow/internal/response"
	"github.com/stemsi/lessonflow/internal/service"
	ws "github.com/stemsi/lessonflow/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// StreamHandler runs a lesson session over a WebSocket.
type StreamHandler struct {
	player   *service.PlayerService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(player *service.PlayerService, log zerolog.Logger, allowedOrigins []string) *StreamHandler {
	return &StreamHandler{
		player:   player,
		log:      log.With().Str("component", "stream_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// LessonStream godoc
// WS /ws/v1/lessons/:lesson_id/stream
// Opens the lesson, pushes engine events and accepts learner actions.
// Closing the last socket of a session exits the lesson and persists the
// bookmark.
func (h *StreamHandler) LessonStream(c *gin.Context) {
	learner, lessonID, ok := target(c)
	if !ok {
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Str("learner_id", learner.ID).
		Str("lesson_id", lessonID.String()).
		Logger()

	// The request context is cancelled once the handler returns; the
	// session must outlive individual reads.
	ctx := context.WithoutCancel(c.Request.Context())

	opened, err := h.player.Open(ctx, learner, lessonID)
	if err != nil {
		h.writeErr(conn, err)
		return
	}
	if err := h.player.Connect(learner, lessonID); err != nil {
		h.writeErr(conn, err)
		return
	}
	defer func() {
		exited, err := h.player.Disconnect(ctx, learner, lessonID)
		switch {
		case err != nil:
			wsLog.Debug().Err(err).Msg("Session already closed")
		case !exited:
			wsLog.Debug().Msg("Another connection keeps the session open")
		}
	}()

	if err := conn.WriteEvent(ws.EventSession, opened); err != nil {
		return
	}

	events, unsubscribe, err := h.player.Subscribe(learner, lessonID)
	if err != nil {
		h.writeErr(conn, err)
		return
	}
	defer unsubscribe()
	go forward(conn, events)

	wsLog.Info().Msg("Learner connected")

	for {
		var req ws.Request
		if err := conn.ReadRequest(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		h.dispatch(ctx, conn, wsLog, learner, lessonID, &req)
	}
}

// forward relays session events until the subscription is cancelled.
func forward(conn *ws.Conn, events <-chan ws.Message) {
	for m := range events {
		if err := conn.WriteTyped(m); err != nil {
			return
		}
	}
}

func (h *StreamHandler) dispatch(ctx context.Context, conn *ws.Conn, log zerolog.Logger, learner service.Learner, lessonID uuid.UUID, req *ws.Request) {
	var (
		u   engine.Update
		err error
	)

	switch req.Action {
	case ws.ActionPing:
		conn.WriteEvent(ws.EventPong, nil)
		return

	case ws.ActionBlockComplete:
		if req.Index == nil {
			conn.WriteError(string(response.ErrValidation), "index is required")
			return
		}
		u, err = h.player.Complete(ctx, learner, lessonID, *req.Index, model.CompletionData{
			Correct:       req.Correct,
			SelectedIndex: req.SelectedIndex,
			Answers:       req.Answers,
			ScrollOffset:  req.ScrollOffset,
			Extra:         req.Extra,
		})

	case ws.ActionProgress:
		if req.Percentage == nil {
			conn.WriteError(string(response.ErrValidation), "percentage is required")
			return
		}
		u, err = h.player.Progress(ctx, learner, lessonID, *req.Percentage, req.ScrollOffset)

	case ws.ActionViewport:
		if req.Index == nil {
			conn.WriteError(string(response.ErrValidation), "index is required")
			return
		}
		u, err = h.player.Viewport(learner, lessonID, *req.Index)

	case ws.ActionRetryBlock:
		if req.Index == nil {
			conn.WriteError(string(response.ErrValidation), "index is required")
			return
		}
		rb, rerr := h.player.Retry(learner, lessonID, *req.Index)
		if rerr != nil {
			h.writeErr(conn, rerr)
			return
		}
		conn.WriteEvent(ws.EventRenderedBlock, rb)
		return

	case ws.ActionAudioPlay:
		u, err = h.player.Play(learner, lessonID)
	case ws.ActionAudioPause:
		u, err = h.player.Pause(learner, lessonID)
	case ws.ActionAudioTick, ws.ActionAudioSeek:
		if req.Time == nil {
			conn.WriteError(string(response.ErrValidation), "time is required")
			return
		}
		if req.Action == ws.ActionAudioTick {
			u, err = h.player.Tick(ctx, learner, lessonID, *req.Time)
		} else {
			u, err = h.player.Seek(ctx, learner, lessonID, *req.Time)
		}

	default:
		log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
		conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
		return
	}

	if err != nil {
		h.writeErr(conn, err)
		return
	}
	for _, m := range service.UpdateMessages(u) {
		if err := conn.WriteTyped(m); err != nil {
			return
		}
	}
}

func (h *StreamHandler) writeErr(conn *ws.Conn, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Stream action failed")
	}
	conn.WriteError(string(code), response.GetMessage(code))
}
