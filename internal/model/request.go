package model

import "encoding/json"

// CompleteBlockRequest is the body of a block completion.
type CompleteBlockRequest struct {
	Correct       *bool           `json:"correct"`
	SelectedIndex *int            `json:"selected_index" binding:"omitempty,min=0"`
	Answers       []string        `json:"answers" binding:"omitempty,max=50"`
	ScrollOffset  float64         `json:"scroll_offset" binding:"min=0"`
	Extra         json.RawMessage `json:"extra"`
}

func (r CompleteBlockRequest) CompletionData() CompletionData {
	return CompletionData{
		Correct:       r.Correct,
		SelectedIndex: r.SelectedIndex,
		Answers:       r.Answers,
		ScrollOffset:  r.ScrollOffset,
		Extra:         r.Extra,
	}
}

// ProgressRequest reports how much of the lesson has been consumed.
type ProgressRequest struct {
	Percentage   *float64 `json:"percentage" binding:"required"`
	ScrollOffset float64  `json:"scroll_offset" binding:"min=0"`
}

// SeekRequest moves audio playback.
type SeekRequest struct {
	Time *float64 `json:"time" binding:"required,min=0"`
}

// LessonSummary is a lesson listing entry.
type LessonSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	HasAudio bool   `json:"has_audio"`
	Premium  bool   `json:"has_premium_content"`
}
