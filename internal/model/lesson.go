package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Lesson is a persisted lesson row.
type Lesson struct {
	ID        uuid.UUID       `json:"id"`
	Title     string          `json:"title"`
	AudioURL  *string         `json:"audio_url,omitempty"`
	Document  json.RawMessage `json:"document"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LessonDocument is the raw lesson document handed over by persistence.
// Either Content alone (flat) or Content + PremiumContent (tiered).
type LessonDocument struct {
	Title          string `json:"title"`
	AudioURL       string `json:"audioUrl,omitempty"`
	Content        []Page `json:"content"`
	PremiumContent []Page `json:"premiumContent,omitempty"`
}

// Page is an ordered group of raw blocks.
type Page struct {
	Title  string     `json:"title,omitempty"`
	Blocks []RawBlock `json:"blocks"`
}

// RawBlock is a block as authored; Type may be unknown or an alias.
type RawBlock struct {
	ID      string            `json:"id,omitempty"`
	Type    string            `json:"type"`
	Content json.RawMessage   `json:"content"`
	Config  json.RawMessage   `json:"config,omitempty"`
	Styles  map[string]string `json:"styles,omitempty"`
}

// Tiered reports whether the document splits free and premium pages.
func (d LessonDocument) Tiered() bool {
	return len(d.PremiumContent) > 0
}
