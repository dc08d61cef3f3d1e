package engine

import (
	"fmt"

	"github.com/stemsi/lessonflow/internal/model"
)

// SectionType classifies a Section.
type SectionType string

const (
	SectionContent   SectionType = "content"
	SectionQuiz      SectionType = "quiz"
	SectionFillBlank SectionType = "fill_blank"
)

// Section is a contiguous run of blocks and the unit of visibility gating.
type Section struct {
	ID     string        `json:"id"`
	Type   SectionType   `json:"type"`
	Blocks []model.Block `json:"blocks"`
	// Start is the global index of the first block.
	Start int `json:"start"`
	// PrecedingQuizID names the gate this section waits on. Empty means none.
	PrecedingQuizID string `json:"preceding_quiz_id,omitempty"`
	IsLastQuiz      bool   `json:"is_last_quiz"`
	IsLastInGroup   bool   `json:"is_last_in_group"`

	visible bool
}

// Visible reports whether the section is currently shown. It is derived by
// the Gate and cannot be set from outside this package.
func (s Section) Visible() bool {
	return s.visible
}

// IsGate reports whether the section gates later content.
func (s Section) IsGate() bool {
	return s.Type == SectionQuiz || s.Type == SectionFillBlank
}

// End returns the global index one past the last block.
func (s Section) End() int {
	return s.Start + len(s.Blocks)
}

// Segment partitions a flat block list into sections. It is pure: the same
// input always yields the same sections, and concatenating the blocks of
// the result reproduces blocks exactly.
//
// Visibility is initialised to the locked state of each section (content
// sections with a preceding gate start hidden).
func Segment(blocks []model.Block) []Section {
	lastQuiz := -1
	for i, b := range blocks {
		if b.Type == model.BlockQuiz {
			lastQuiz = i
		}
	}

	var (
		sections []Section
		pending  []model.Block
		start    int
		lastGate string
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		sections = append(sections, Section{
			ID:              sectionID(len(sections)),
			Type:            SectionContent,
			Blocks:          pending,
			Start:           start,
			PrecedingQuizID: lastGate,
			visible:         lastGate == "",
		})
		pending = nil
	}

	for i, b := range blocks {
		if !b.IsGate() {
			if len(pending) == 0 {
				start = i
			}
			pending = append(pending, b)
			continue
		}

		flush()
		st := SectionQuiz
		if b.Type == model.BlockFillBlank {
			st = SectionFillBlank
		}
		s := Section{
			ID:      sectionID(len(sections)),
			Type:    st,
			Blocks:  []model.Block{b},
			Start:   i,
			visible: true,
		}
		s.IsLastQuiz = b.Type == model.BlockQuiz && i == lastQuiz
		sections = append(sections, s)
		lastGate = s.ID
	}
	flush()

	// Mark the final gate of every consecutive gating run.
	for i := range sections {
		if !sections[i].IsGate() {
			continue
		}
		if i == len(sections)-1 || !sections[i+1].IsGate() {
			sections[i].IsLastInGroup = true
		}
	}

	return sections
}

func sectionID(n int) string {
	return fmt.Sprintf("section-%d", n)
}

// Flatten concatenates the blocks of sections in order.
func Flatten(sections []Section) []model.Block {
	var out []model.Block
	for _, s := range sections {
		out = append(out, s.Blocks...)
	}
	return out
}

// ownerIndex maps every global block index to the index of its section.
func ownerIndex(sections []Section) []int {
	var owner []int
	for si, s := range sections {
		for range s.Blocks {
			owner = append(owner, si)
		}
	}
	return owner
}
