package model

import (
	"encoding/json"
	"time"
)

// Bookmark points at the last position a learner reached in a lesson.
type Bookmark struct {
	LessonID       string  `json:"lesson_id"`
	LearnerID      string  `json:"learner_id"`
	BlockIndex     int     `json:"block_index"`
	ScrollPosition float64 `json:"scroll_position"`
	Timestamp      int64   `json:"timestamp"` // epoch ms
}

// Time returns the bookmark timestamp as time.Time.
func (b Bookmark) Time() time.Time {
	return time.UnixMilli(b.Timestamp)
}

// CompletionData is reported by the client when a block is finished.
type CompletionData struct {
	// Correct is nil when the block has no notion of correctness.
	Correct       *bool           `json:"correct,omitempty"`
	SelectedIndex *int            `json:"selected_index,omitempty"`
	Answers       []string        `json:"answers,omitempty"`
	ScrollOffset  float64         `json:"scroll_offset,omitempty"`
	Extra         json.RawMessage `json:"extra,omitempty"`
}

// WasCorrect treats a missing verdict as correct.
func (d CompletionData) WasCorrect() bool {
	return d.Correct == nil || *d.Correct
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}

// Int returns a pointer to i.
func Int(i int) *int {
	return &i
}

// ProgressUpdate is emitted whenever the completed block set changes.
type ProgressUpdate struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Severity classifies learner notifications.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// XPAward is a pending XP grant.
type XPAward struct {
	LearnerID string    `json:"learner_id"`
	LessonID  string    `json:"lesson_id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	AwardedAt time.Time `json:"awarded_at"`
}

// LessonCompletion records the single moment a lesson became complete.
type LessonCompletion struct {
	LessonID    string    `json:"lesson_id"`
	LearnerID   string    `json:"learner_id"`
	Percentage  float64   `json:"percentage"`
	CompletedAt time.Time `json:"completed_at"`
}
