package engine

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/stemsi/lessonflow/internal/model"
)

// PlaybackController is handed to blocks that need to drive the audio track.
type PlaybackController interface {
	CurrentTime() float64
	State() PlaybackState
	Seek(t float64) []AudioEvent
}

// RenderContext is the per-render environment passed to every RenderFunc.
type RenderContext struct {
	Playback   PlaybackController
	Production bool
	Completed  func(index int) bool
}

// RenderFunc turns a block and its decoded content into a view model.
type RenderFunc func(rc RenderContext, index int, b model.Block, content any) (any, error)

var renderers = map[model.BlockType]RenderFunc{
	model.BlockText:               renderPassthrough,
	model.BlockHeading:            renderPassthrough,
	model.BlockImage:              renderPassthrough,
	model.BlockVideo:              renderPassthrough,
	model.BlockPodcastSync:        renderPodcast,
	model.BlockQuiz:               renderQuiz,
	model.BlockSandbox:            renderPassthrough,
	model.BlockSectionBreak:       renderPassthrough,
	model.BlockFillBlank:          renderFillBlank,
	model.BlockChecklist:          renderPassthrough,
	model.BlockProgressCheckpoint: renderPassthrough,
	model.BlockCallToAction:       renderPassthrough,
	model.BlockAPICall:            renderPassthrough,
}

func init() {
	for _, t := range model.AllBlockTypes {
		if _, ok := renderers[t]; !ok {
			panic(fmt.Sprintf("engine: no renderer for block type %q", t))
		}
	}
	if len(renderers) != len(model.AllBlockTypes) {
		panic("engine: renderer table has entries outside the block type enum")
	}
}

// RenderError describes a block that failed to render. Detail and Stack are
// only populated outside production.
type RenderError struct {
	BlockType model.BlockType `json:"block_type"`
	Message   string          `json:"message"`
	Detail    string          `json:"detail,omitempty"`
	Stack     string          `json:"stack,omitempty"`
	Retryable bool            `json:"retryable"`
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %s", e.BlockType, e.Message)
}

// RenderedBlock is the view of one block.
type RenderedBlock struct {
	Index       int               `json:"index"`
	ID          string            `json:"id"`
	Type        model.BlockType   `json:"type"`
	Mounted     bool              `json:"mounted"`
	Placeholder *Placeholder      `json:"placeholder,omitempty"`
	View        any               `json:"view,omitempty"`
	Config      model.BlockConfig `json:"config"`
	Styles      map[string]string `json:"styles,omitempty"`
	Completed   bool              `json:"completed"`
	Error       *RenderError      `json:"error,omitempty"`
}

// renderBlock renders b inside its own error boundary: a panic or error in
// one block never escapes to the rest of the lesson.
func renderBlock(rc RenderContext, index int, b model.Block) (rb RenderedBlock) {
	rb = RenderedBlock{
		Index:   index,
		ID:      b.ID,
		Type:    b.Type,
		Mounted: true,
		Config:  b.Config,
		Styles:  b.Styles,
	}
	if rc.Completed != nil {
		rb.Completed = rc.Completed(index)
	}

	defer func() {
		if r := recover(); r != nil {
			rb.View = nil
			rb.Error = newRenderError(rc, b.Type, fmt.Errorf("panic: %v", r), string(debug.Stack()))
		}
	}()

	fn, ok := renderers[b.Type]
	if !ok {
		rb.Error = newRenderError(rc, b.Type, fmt.Errorf("unsupported block type %q", b.Type), "")
		return rb
	}
	content, err := model.DecodeContent(b)
	if err != nil {
		rb.Error = newRenderError(rc, b.Type, err, "")
		return rb
	}
	view, err := fn(rc, index, b, content)
	if err != nil {
		rb.Error = newRenderError(rc, b.Type, err, "")
		return rb
	}
	rb.View = view
	return rb
}

func newRenderError(rc RenderContext, t model.BlockType, err error, stack string) *RenderError {
	re := &RenderError{
		BlockType: t,
		Message:   "Konten ini gagal ditampilkan",
		Retryable: true,
	}
	if errors.Is(err, model.ErrInvalidContent) {
		re.Retryable = false
	}
	if !rc.Production {
		re.Detail = err.Error()
		re.Stack = stack
	}
	return re
}

func renderPassthrough(_ RenderContext, _ int, _ model.Block, content any) (any, error) {
	return content, nil
}

// QuizView is a quiz without its answer key.
type QuizView struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	InstantFeedback bool     `json:"instant_feedback"`
	AllowRetry      bool     `json:"allow_retry"`
}

func renderQuiz(_ RenderContext, _ int, b model.Block, content any) (any, error) {
	q := content.(*model.QuizContent)
	return QuizView{
		Question:        q.Question,
		Options:         q.Options,
		InstantFeedback: b.Config.InstantFeedback,
		AllowRetry:      b.Config.AllowRetry,
	}, nil
}

// FillBlankView hides the expected answers.
type FillBlankView struct {
	Sentence string `json:"sentence"`
	Blanks   int    `json:"blanks"`
	Hint     string `json:"hint,omitempty"`
}

func renderFillBlank(_ RenderContext, _ int, _ model.Block, content any) (any, error) {
	fb := content.(*model.FillBlankContent)
	blanks := strings.Count(fb.Sentence, "___")
	if blanks == 0 {
		blanks = len(fb.Answers)
	}
	return FillBlankView{Sentence: fb.Sentence, Blanks: blanks, Hint: fb.Hint}, nil
}

// PodcastView pairs transcript segments with seek targets.
type PodcastView struct {
	Title    string               `json:"title,omitempty"`
	AudioURL string               `json:"audio_url,omitempty"`
	Segments []PodcastSegmentView `json:"segments"`
	Active   int                  `json:"active"`
	Seekable bool                 `json:"seekable"`
}

type PodcastSegmentView struct {
	Label  string  `json:"label"`
	SeekTo float64 `json:"seek_to"`
	Text   string  `json:"text"`
}

func renderPodcast(rc RenderContext, _ int, _ model.Block, content any) (any, error) {
	p := content.(*model.PodcastSyncContent)
	v := PodcastView{
		Title:    p.Title,
		AudioURL: p.AudioURL,
		Active:   -1,
		Seekable: rc.Playback != nil,
	}
	now := -1.0
	if rc.Playback != nil && rc.Playback.State() != StateIdle {
		now = rc.Playback.CurrentTime()
	}
	for i, seg := range p.Segments {
		v.Segments = append(v.Segments, PodcastSegmentView{
			Label:  FormatTime(seg.Start),
			SeekTo: seg.Start,
			Text:   seg.Text,
		})
		if now >= seg.Start && now < seg.End {
			v.Active = i
		}
	}
	return v, nil
}
