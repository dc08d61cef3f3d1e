package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/response"
)

// RequestLogger writes one access log line per request. It must run after
// RequestIDMiddleware; learner ids are added when a JWT was validated.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Debug()
		}
		ev = ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start))
		if id := c.GetString(response.ContextKeyRequestID); id != "" {
			ev = ev.Str("request_id", id)
		}
		if claims := GetClaims(c); claims != nil {
			ev = ev.Str("learner_id", claims.LearnerID)
		}
		ev.Msg("HTTP request")
	}
}
