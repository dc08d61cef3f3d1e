package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/stemsi/lessonflow/internal/model"
)

func textBlock(id string) model.Block {
	return model.Block{
		ID:      id,
		Type:    model.BlockText,
		Content: model.MustContent(model.TextContent{Text: "text " + id}),
	}
}

func quizBlock(id string) model.Block {
	return model.Block{
		ID:   id,
		Type: model.BlockQuiz,
		Content: model.MustContent(model.QuizContent{
			Question:           "Q " + id,
			Options:            []string{"a", "b", "c"},
			CorrectAnswerIndex: 1,
			CorrectFeedback:    "benar",
			IncorrectFeedback:  "salah",
		}),
	}
}

func fillBlock(id string, last bool) model.Block {
	return model.Block{
		ID:   id,
		Type: model.BlockFillBlank,
		Content: model.MustContent(model.FillBlankContent{
			Sentence: "Go was created at ___.",
			Answers:  []string{"Google"},
		}),
		Config: model.BlockConfig{IsLastInGroup: last},
	}
}

func sandboxBlock(id string) model.Block {
	return model.Block{
		ID:      id,
		Type:    model.BlockSandbox,
		Content: model.MustContent(model.SandboxContent{Language: "go"}),
	}
}

func timed(b model.Block, start, end float64) model.Block {
	b.Config.StartTime = model.Float(start)
	b.Config.EndTime = model.Float(end)
	return b
}

func types(sections []Section) []SectionType {
	out := make([]SectionType, len(sections))
	for i, s := range sections {
		out[i] = s.Type
	}
	return out
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type notification struct {
	Message  string
	Severity model.Severity
}

type award struct {
	Amount int
	Reason string
}

// recordingOutbox captures every outward call.
type recordingOutbox struct {
	mu            sync.Mutex
	completedIdx  []int
	progress      []model.ProgressUpdate
	awards        []award
	notifications []notification
	bookmarks     []model.Bookmark
	syncBookmarks []model.Bookmark
	completions   []model.LessonCompletion
	saveErr       error
}

func (o *recordingOutbox) BlockCompleted(_ context.Context, index int, _ model.CompletionData) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completedIdx = append(o.completedIdx, index)
}

func (o *recordingOutbox) ProgressUpdated(_ context.Context, p model.ProgressUpdate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, p)
}

func (o *recordingOutbox) AwardXP(_ context.Context, amount int, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.awards = append(o.awards, award{Amount: amount, Reason: reason})
}

func (o *recordingOutbox) ShowNotification(_ context.Context, message string, severity model.Severity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications = append(o.notifications, notification{Message: message, Severity: severity})
}

func (o *recordingOutbox) SaveBookmark(_ context.Context, b model.Bookmark) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bookmarks = append(o.bookmarks, b)
}

func (o *recordingOutbox) SaveBookmarkNow(_ context.Context, b model.Bookmark) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncBookmarks = append(o.syncBookmarks, b)
	return o.saveErr
}

func (o *recordingOutbox) LessonCompleted(_ context.Context, c model.LessonCompletion) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completions = append(o.completions, c)
}

func nan() float64 {
	return math.NaN()
}
