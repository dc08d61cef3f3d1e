package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stemsi/lessonflow/internal/validator"
)

// ErrInvalidContent is returned when a block's payload does not match its type.
var ErrInvalidContent = errors.New("invalid block content")

type TextContent struct {
	Text string `json:"text" binding:"required"`
}

type HeadingContent struct {
	Text  string `json:"text" binding:"required"`
	Level int    `json:"level" binding:"omitempty,min=1,max=6"`
}

type ImageContent struct {
	URL     string `json:"url" binding:"required"`
	Alt     string `json:"alt"`
	Caption string `json:"caption"`
}

type VideoContent struct {
	URL      string  `json:"url" binding:"required"`
	Caption  string  `json:"caption"`
	StartSec float64 `json:"startSec" binding:"min=0"`
}

// PodcastSegment is one transcript span of a podcast_sync block.
type PodcastSegment struct {
	Start float64 `json:"start" binding:"min=0"`
	End   float64 `json:"end" binding:"gtfield=Start"`
	Text  string  `json:"text" binding:"required"`
}

type PodcastSyncContent struct {
	AudioURL string           `json:"audioUrl"`
	Title    string           `json:"title"`
	Segments []PodcastSegment `json:"segments" binding:"required,min=1,dive"`
}

type QuizContent struct {
	Question           string   `json:"question" binding:"required"`
	Options            []string `json:"options" binding:"required,min=2"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex" binding:"min=0"`
	CorrectFeedback    string   `json:"correctFeedback"`
	IncorrectFeedback  string   `json:"incorrectFeedback"`
}

type SandboxContent struct {
	Language     string `json:"language" binding:"required"`
	Instructions string `json:"instructions"`
	StarterCode  string `json:"starterCode"`
}

type SectionBreakContent struct {
	Label string `json:"label"`
}

// FillBlankContent marks blanks in Sentence with "___"; Answers are in order.
type FillBlankContent struct {
	Sentence string   `json:"sentence" binding:"required"`
	Answers  []string `json:"answers" binding:"required,min=1"`
	Hint     string   `json:"hint"`
}

type ChecklistContent struct {
	Title string   `json:"title"`
	Items []string `json:"items" binding:"required,min=1"`
}

type ProgressCheckpointContent struct {
	Title   string `json:"title" binding:"required"`
	Message string `json:"message"`
}

type CallToActionContent struct {
	Title       string `json:"title" binding:"required"`
	Text        string `json:"text"`
	ButtonLabel string `json:"buttonLabel"`
	URL         string `json:"url"`
}

type APICallContent struct {
	Endpoint    string `json:"endpoint" binding:"required"`
	Method      string `json:"method" binding:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Description string `json:"description"`
}

// newContent returns an empty payload for t.
func newContent(t BlockType) (any, error) {
	switch t {
	case BlockText:
		return &TextContent{}, nil
	case BlockHeading:
		return &HeadingContent{}, nil
	case BlockImage:
		return &ImageContent{}, nil
	case BlockVideo:
		return &VideoContent{}, nil
	case BlockPodcastSync:
		return &PodcastSyncContent{}, nil
	case BlockQuiz:
		return &QuizContent{}, nil
	case BlockSandbox:
		return &SandboxContent{}, nil
	case BlockSectionBreak:
		return &SectionBreakContent{}, nil
	case BlockFillBlank:
		return &FillBlankContent{}, nil
	case BlockChecklist:
		return &ChecklistContent{}, nil
	case BlockProgressCheckpoint:
		return &ProgressCheckpointContent{}, nil
	case BlockCallToAction:
		return &CallToActionContent{}, nil
	case BlockAPICall:
		return &APICallContent{}, nil
	}
	return nil, fmt.Errorf("%w: unknown block type %q", ErrInvalidContent, t)
}

// DecodeContent decodes and validates the payload of b for its type.
// The returned value is a pointer to one of the *Content structs.
func DecodeContent(b Block) (any, error) {
	dst, err := newContent(b.Type)
	if err != nil {
		return nil, err
	}

	raw := b.Content
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidContent, b.Type, err)
	}
	if err := validator.Struct(dst); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidContent, b.Type, err)
	}

	if q, ok := dst.(*QuizContent); ok && q.CorrectAnswerIndex >= len(q.Options) {
		return nil, fmt.Errorf("%w: quiz correctAnswerIndex %d out of range", ErrInvalidContent, q.CorrectAnswerIndex)
	}
	return dst, nil
}

// MustContent marshals v for test fixtures and synthetic blocks.
func MustContent(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
