package engine

import (
	"errors"
	"sort"
)

var ErrUnknownGate = errors.New("section is not a gate")

// Gate derives section visibility from the quiz completion map.
// Visibility only ever flips from hidden to shown.
type Gate struct {
	sections   []Section
	completion map[string]bool
}

// NewGate takes ownership of sections and settles their visibility.
func NewGate(sections []Section) *Gate {
	g := &Gate{
		sections:   sections,
		completion: make(map[string]bool),
	}
	for _, s := range sections {
		if s.IsGate() {
			g.completion[s.ID] = false
		}
	}
	g.recompute()
	return g
}

// OnGateAnswered marks the gate as attempted and returns the indices of
// sections that became visible as a result. wasCorrect never affects
// visibility; a wrong answer unlocks just like a right one.
func (g *Gate) OnGateAnswered(sectionID string, wasCorrect bool) ([]int, error) {
	if _, ok := g.completion[sectionID]; !ok {
		return nil, ErrUnknownGate
	}
	g.completion[sectionID] = true
	return g.recompute(), nil
}

// Answered reports whether the gate has been attempted.
func (g *Gate) Answered(sectionID string) bool {
	return g.completion[sectionID]
}

// Completion returns a copy of the quiz completion map.
func (g *Gate) Completion() map[string]bool {
	out := make(map[string]bool, len(g.completion))
	for k, v := range g.completion {
		out[k] = v
	}
	return out
}

// Answers lists attempted gate ids in sorted order.
func (g *Gate) Answers() []string {
	var ids []string
	for id, done := range g.completion {
		if done {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Sections exposes the gated section list. Callers must not mutate it.
func (g *Gate) Sections() []Section {
	return g.sections
}

// recompute re-evaluates every section and returns the newly visible ones.
func (g *Gate) recompute() []int {
	var unlocked []int
	for i := range g.sections {
		s := &g.sections[i]
		if s.visible {
			continue
		}
		if s.PrecedingQuizID == "" || g.completion[s.PrecedingQuizID] {
			s.visible = true
			unlocked = append(unlocked, i)
		}
	}
	return unlocked
}
