package handler

import (
	"errors"
	"net/http"

	"github.com/stemsi/lessonflow/internal/engine"
	"github.com/stemsi/lessonflow/internal/model"
	"github.com/stemsi/lessonflow/internal/response"
	"github.com/stemsi/lessonflow/internal/service"
)

// classify maps a service or engine error onto an HTTP status and code.
// Unknown errors are internal.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrLessonNotFound):
		return http.StatusNotFound, response.ErrLessonNotFound
	case errors.Is(err, engine.ErrLessonMalformed),
		errors.Is(err, engine.ErrNoBlocks),
		errors.Is(err, engine.ErrDuplicateBlockID):
		return http.StatusUnprocessableEntity, response.ErrLessonMalformed
	case errors.Is(err, service.ErrSessionNotOpen),
		errors.Is(err, engine.ErrPlayerClosed):
		return http.StatusConflict, response.ErrSessionNotOpen
	case errors.Is(err, engine.ErrBlockOutOfRange):
		return http.StatusNotFound, response.ErrBlockOutOfRange
	case errors.Is(err, engine.ErrSectionLocked):
		return http.StatusForbidden, response.ErrSectionLocked
	case errors.Is(err, engine.ErrAlreadyAnswered):
		return http.StatusConflict, response.ErrGateAlreadyAnswer
	case errors.Is(err, engine.ErrAnswerRequired):
		return http.StatusBadRequest, response.ErrAnswerRequired
	case errors.Is(err, engine.ErrInvalidAnswer),
		errors.Is(err, engine.ErrInvalidPercentage):
		return http.StatusBadRequest, response.ErrInvalidPayload
	case errors.Is(err, model.ErrInvalidContent):
		return http.StatusUnprocessableEntity, response.ErrBlockNotGradable
	case errors.Is(err, engine.ErrNothingToRetry):
		return http.StatusConflict, response.ErrNothingToRetry
	case errors.Is(err, engine.ErrNoAudio):
		return http.StatusConflict, response.ErrAudioUnavailable
	case errors.Is(err, engine.ErrQuizPauseActive):
		return http.StatusConflict, response.ErrAudioQuizPause
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}
