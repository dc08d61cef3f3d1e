package websocket

import (
	"encoding/json"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionBlockComplete Action = "block_complete"
	ActionProgress      Action = "progress"
	ActionViewport      Action = "viewport"
	ActionAudioPlay     Action = "audio_play"
	ActionAudioPause    Action = "audio_pause"
	ActionAudioTick     Action = "audio_tick"
	ActionAudioSeek     Action = "audio_seek"
	ActionRetryBlock    Action = "retry_block"
	ActionPing          Action = "ping"
)

// Request is every client message. Only the fields relevant to Action are set.
type Request struct {
	Action Action `json:"action"`

	// block_complete, viewport, retry_block
	Index *int `json:"index,omitempty"`
	// block_complete
	Correct       *bool           `json:"correct,omitempty"`
	SelectedIndex *int            `json:"selected_index,omitempty"`
	Answers       []string        `json:"answers,omitempty"`
	ScrollOffset  float64         `json:"scroll_offset,omitempty"`
	Extra         json.RawMessage `json:"extra,omitempty"`
	// progress
	Percentage *float64 `json:"percentage,omitempty"`
	// audio_tick, audio_seek
	Time *float64 `json:"time,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSession         Event = "session"
	EventNotification    Event = "notification"
	EventProgress        Event = "progress"
	EventXP              Event = "xp"
	EventSectionUnlocked Event = "section_unlocked"
	EventMounted         Event = "mounted"
	EventAudioState      Event = "audio_state"
	EventHighlight       Event = "highlight"
	EventScrollTo        Event = "scroll_to"
	EventCompleted       Event = "completed"
	EventRenderedBlock   Event = "rendered_block"
	EventVerdict         Event = "verdict"
	EventError           Event = "error"
	EventPong            Event = "pong"
)

// Message is the envelope of every server event.
type Message struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type NotificationData struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

type XPData struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

type SectionUnlockedData struct {
	Sections []string `json:"sections"`
}

type MountedData struct {
	Blocks []int `json:"blocks"`
}
