package model

import (
	"encoding/json"
)

// BlockType enumerates the closed set of content block kinds.
type BlockType string

const (
	BlockText               BlockType = "text"
	BlockHeading            BlockType = "heading"
	BlockImage              BlockType = "image"
	BlockVideo              BlockType = "video"
	BlockPodcastSync        BlockType = "podcast_sync"
	BlockQuiz               BlockType = "quiz"
	BlockSandbox            BlockType = "sandbox"
	BlockSectionBreak       BlockType = "section_break"
	BlockFillBlank          BlockType = "fill_blank"
	BlockChecklist          BlockType = "checklist"
	BlockProgressCheckpoint BlockType = "progress_checkpoint"
	BlockCallToAction       BlockType = "call_to_action"
	BlockAPICall            BlockType = "api_call"
)

// AllBlockTypes lists every BlockType in declaration order.
var AllBlockTypes = []BlockType{
	BlockText,
	BlockHeading,
	BlockImage,
	BlockVideo,
	BlockPodcastSync,
	BlockQuiz,
	BlockSandbox,
	BlockSectionBreak,
	BlockFillBlank,
	BlockChecklist,
	BlockProgressCheckpoint,
	BlockCallToAction,
	BlockAPICall,
}

// Valid reports whether t belongs to the closed enum.
func (t BlockType) Valid() bool {
	for _, bt := range AllBlockTypes {
		if bt == t {
			return true
		}
	}
	return false
}

// Interactive reports whether completing a block of this type requires a
// learner action that counts toward lesson completion.
func (t BlockType) Interactive() bool {
	switch t {
	case BlockQuiz, BlockFillBlank, BlockSandbox:
		return true
	}
	return false
}

// Block is the atomic content unit of a lesson.
type Block struct {
	ID      string            `json:"id"`
	Type    BlockType         `json:"type"`
	Content json.RawMessage   `json:"content"`
	Config  BlockConfig       `json:"config"`
	Styles  map[string]string `json:"styles,omitempty"`
}

// BlockConfig holds per-instance behavior flags.
type BlockConfig struct {
	InstantFeedback bool `json:"instantFeedback,omitempty"`
	AllowRetry      bool `json:"allowRetry,omitempty"`
	// IsLastInGroup makes a fill_blank block a gate of its own.
	IsLastInGroup bool `json:"isLastInGroup,omitempty"`

	// Audio window of the block in seconds, for audio-paired lessons.
	StartTime *float64 `json:"startTime,omitempty"`
	EndTime   *float64 `json:"endTime,omitempty"`
	// PauseAt overrides the cut-point derived for a gating block.
	PauseAt *float64 `json:"pauseAt,omitempty"`

	IsTitle   bool `json:"isTitle,omitempty"`
	Synthetic bool `json:"synthetic,omitempty"`
}

// IsGate reports whether the block forms its own gating section.
func (b Block) IsGate() bool {
	switch b.Type {
	case BlockQuiz:
		return true
	case BlockFillBlank:
		return b.Config.IsLastInGroup
	}
	return false
}

// Float returns a pointer to f, for building BlockConfig literals.
func Float(f float64) *float64 {
	return &f
}
