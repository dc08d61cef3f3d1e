package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/lessonflow/internal/model"
)

func TestRenderers_CoverEveryBlockType(t *testing.T) {
	for _, bt := range model.AllBlockTypes {
		assert.Contains(t, renderers, bt)
	}
}

func TestRenderBlock_QuizHidesAnswer(t *testing.T) {
	rb := renderBlock(RenderContext{}, 0, quizBlock("q"))

	require.Nil(t, rb.Error)
	raw, err := json.Marshal(rb)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correctAnswerIndex")
	assert.NotContains(t, string(raw), "benar")

	view, ok := rb.View.(QuizView)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, view.Options)
}

func TestRenderBlock_FillBlankHidesAnswers(t *testing.T) {
	rb := renderBlock(RenderContext{}, 0, fillBlock("f", true))

	require.Nil(t, rb.Error)
	view := rb.View.(FillBlankView)
	assert.Equal(t, 1, view.Blanks)
	raw, _ := json.Marshal(rb)
	assert.NotContains(t, string(raw), "Google")
}

func TestRenderBlock_PanicIsIsolated(t *testing.T) {
	orig := renderers[model.BlockChecklist]
	renderers[model.BlockChecklist] = func(RenderContext, int, model.Block, any) (any, error) {
		panic("boom")
	}
	t.Cleanup(func() { renderers[model.BlockChecklist] = orig })

	b := model.Block{
		ID:      "c",
		Type:    model.BlockChecklist,
		Content: model.MustContent(model.ChecklistContent{Items: []string{"x"}}),
	}

	rb := renderBlock(RenderContext{}, 3, b)
	require.NotNil(t, rb.Error)
	assert.True(t, rb.Error.Retryable)
	assert.Contains(t, rb.Error.Detail, "boom")
	assert.NotEmpty(t, rb.Error.Stack)
	assert.Nil(t, rb.View)

	rb = renderBlock(RenderContext{Production: true}, 3, b)
	require.NotNil(t, rb.Error)
	assert.Empty(t, rb.Error.Detail)
	assert.Empty(t, rb.Error.Stack)

	// Neighbours are unaffected.
	assert.Nil(t, renderBlock(RenderContext{}, 4, textBlock("t")).Error)
}

func TestRenderBlock_RenderFuncError(t *testing.T) {
	orig := renderers[model.BlockAPICall]
	renderers[model.BlockAPICall] = func(RenderContext, int, model.Block, any) (any, error) {
		return nil, errors.New("endpoint unreachable")
	}
	t.Cleanup(func() { renderers[model.BlockAPICall] = orig })

	b := model.Block{ID: "api", Type: model.BlockAPICall, Content: model.MustContent(model.APICallContent{Endpoint: "/x"})}
	rb := renderBlock(RenderContext{}, 0, b)

	require.NotNil(t, rb.Error)
	assert.Equal(t, "endpoint unreachable", rb.Error.Detail)
}

func TestRenderBlock_InvalidContentIsNotRetryable(t *testing.T) {
	b := model.Block{ID: "img", Type: model.BlockImage, Content: json.RawMessage(`{"alt":"no url"}`)}

	rb := renderBlock(RenderContext{}, 0, b)

	require.NotNil(t, rb.Error)
	assert.False(t, rb.Error.Retryable)
	assert.Equal(t, model.BlockImage, rb.Error.BlockType)
}

type stubPlayback struct {
	now   float64
	state PlaybackState
}

func (s *stubPlayback) CurrentTime() float64 { return s.now }
func (s *stubPlayback) State() PlaybackState { return s.state }

func (s *stubPlayback) Seek(t float64) []AudioEvent {
	s.now = t
	return nil
}

func TestRenderBlock_PodcastUsesPlaybackController(t *testing.T) {
	b := model.Block{
		ID:   "pod",
		Type: model.BlockPodcastSync,
		Content: model.MustContent(model.PodcastSyncContent{
			Title: "Episode 1",
			Segments: []model.PodcastSegment{
				{Start: 0, End: 65, Text: "intro"},
				{Start: 65, End: 130, Text: "body"},
			},
		}),
	}

	rb := renderBlock(RenderContext{Playback: &stubPlayback{now: 70, state: StatePlaying}}, 0, b)
	require.Nil(t, rb.Error)
	view := rb.View.(PodcastView)
	assert.True(t, view.Seekable)
	assert.Equal(t, 1, view.Active)
	assert.Equal(t, "01:05", view.Segments[1].Label)

	rb = renderBlock(RenderContext{}, 0, b)
	view = rb.View.(PodcastView)
	assert.False(t, view.Seekable)
	assert.Equal(t, -1, view.Active)
}
