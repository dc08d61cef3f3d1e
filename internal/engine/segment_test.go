package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/lessonflow/internal/model"
)

func TestSegment_NoGatesYieldsSingleVisibleSection(t *testing.T) {
	blocks := []model.Block{textBlock("a"), textBlock("b"), fillBlock("f", false), sandboxBlock("s")}

	sections := Segment(blocks)

	require.Len(t, sections, 1)
	assert.Equal(t, SectionContent, sections[0].Type)
	assert.True(t, sections[0].Visible())
	assert.Empty(t, sections[0].PrecedingQuizID)
	assert.Equal(t, blocks, sections[0].Blocks)
}

func TestSegment_Example(t *testing.T) {
	blocks := []model.Block{textBlock("t1"), quizBlock("A"), textBlock("t2"), quizBlock("B"), textBlock("t3")}

	sections := Segment(blocks)

	require.Equal(t, []SectionType{SectionContent, SectionQuiz, SectionContent, SectionQuiz, SectionContent}, types(sections))
	assert.Equal(t, sections[1].ID, sections[2].PrecedingQuizID)
	assert.Equal(t, sections[3].ID, sections[4].PrecedingQuizID)
	assert.False(t, sections[1].IsLastQuiz)
	assert.True(t, sections[3].IsLastQuiz)
	assert.Equal(t, 2, sections[2].Start)
	assert.Equal(t, 4, sections[4].Start)
}

func TestSegment_Partition(t *testing.T) {
	cases := map[string][]model.Block{
		"empty":             nil,
		"leading quiz":      {quizBlock("q"), textBlock("a")},
		"consecutive gates": {textBlock("a"), quizBlock("q1"), quizBlock("q2"), textBlock("b")},
		"trailing gate":     {textBlock("a"), fillBlock("f", true)},
		"mixed fill blanks": {fillBlock("f1", false), fillBlock("f2", false), fillBlock("f3", true), textBlock("a")},
		"only gates":        {quizBlock("q1"), fillBlock("f", true), quizBlock("q2")},
	}

	for name, blocks := range cases {
		t.Run(name, func(t *testing.T) {
			sections := Segment(blocks)

			assert.Equal(t, blocks, Flatten(sections))
			for _, s := range sections {
				assert.NotEmpty(t, s.Blocks)
				if s.IsGate() {
					assert.Len(t, s.Blocks, 1)
					assert.True(t, s.Visible())
					continue
				}
				assert.Equal(t, s.PrecedingQuizID == "", s.Visible(),
					"content visibility must follow preceding gate for %s", s.ID)
			}
			assert.Equal(t, blocks, Flatten(Segment(blocks)), "segmentation must be deterministic")
		})
	}
}

func TestSegment_LeadingQuiz(t *testing.T) {
	sections := Segment([]model.Block{quizBlock("q"), textBlock("a")})

	require.Equal(t, []SectionType{SectionQuiz, SectionContent}, types(sections))
	assert.Equal(t, sections[0].ID, sections[1].PrecedingQuizID)
	assert.False(t, sections[1].Visible())
}

func TestSegment_ConsecutiveQuizzesHaveNoEmptySectionBetween(t *testing.T) {
	sections := Segment([]model.Block{textBlock("a"), quizBlock("q1"), quizBlock("q2"), textBlock("b")})

	require.Equal(t, []SectionType{SectionContent, SectionQuiz, SectionQuiz, SectionContent}, types(sections))
	assert.False(t, sections[1].IsLastInGroup)
	assert.True(t, sections[2].IsLastInGroup)
	assert.Equal(t, sections[2].ID, sections[3].PrecedingQuizID)
}

func TestSegment_FillBlankGatesOnlyWhenLastInGroup(t *testing.T) {
	sections := Segment([]model.Block{
		textBlock("a"), fillBlock("f1", false), fillBlock("f2", true), textBlock("b"),
	})

	require.Equal(t, []SectionType{SectionContent, SectionFillBlank, SectionContent}, types(sections))
	assert.Len(t, sections[0].Blocks, 2)
	assert.Equal(t, "f2", sections[1].Blocks[0].ID)
	assert.False(t, sections[1].IsLastQuiz)
	assert.True(t, sections[1].IsLastInGroup)
}
