package engine

import (
	"errors"
	"strings"

	"github.com/stemsi/lessonflow/internal/model"
)

var (
	ErrAnswerRequired = errors.New("answer is required")
	ErrInvalidAnswer  = errors.New("answer is out of range")
)

// Verdict is the outcome of grading one block.
type Verdict struct {
	Correct  *bool  `json:"correct,omitempty"`
	Feedback string `json:"feedback,omitempty"`

	// Ungradable is set when the block's own content is broken.
	Ungradable bool `json:"ungradable,omitempty"`
}

// Grade checks the learner's answer for gradable block types and fills in
// data.Correct. Non-gradable blocks pass through untouched.
func Grade(b model.Block, data model.CompletionData) (model.CompletionData, Verdict, error) {
	switch b.Type {
	case model.BlockQuiz:
		raw, err := model.DecodeContent(b)
		if err != nil {
			return data, Verdict{}, err
		}
		q := raw.(*model.QuizContent)
		if data.SelectedIndex == nil {
			return data, Verdict{}, ErrAnswerRequired
		}
		sel := *data.SelectedIndex
		if sel < 0 || sel >= len(q.Options) {
			return data, Verdict{}, ErrInvalidAnswer
		}
		ok := sel == q.CorrectAnswerIndex
		data.Correct = model.Bool(ok)
		v := Verdict{Correct: data.Correct, Feedback: q.IncorrectFeedback}
		if ok {
			v.Feedback = q.CorrectFeedback
		}
		return data, v, nil

	case model.BlockFillBlank:
		raw, err := model.DecodeContent(b)
		if err != nil {
			return data, Verdict{}, err
		}
		fb := raw.(*model.FillBlankContent)
		if len(data.Answers) == 0 {
			return data, Verdict{}, ErrAnswerRequired
		}
		data.Correct = model.Bool(matchBlanks(fb.Answers, data.Answers))
		return data, Verdict{Correct: data.Correct}, nil

	case model.BlockSandbox:
		// Code runs client-side; trust its verdict.
		return data, Verdict{Correct: data.Correct}, nil
	}

	data.Correct = nil
	return data, Verdict{}, nil
}

func matchBlanks(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if !strings.EqualFold(strings.TrimSpace(want[i]), strings.TrimSpace(got[i])) {
			return false
		}
	}
	return true
}
