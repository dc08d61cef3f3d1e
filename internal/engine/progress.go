package engine

import (
	"math"
	"sort"

	"github.com/stemsi/lessonflow/internal/model"
)

// Thresholds configures the completion predicate, in percent.
type Thresholds struct {
	// Completion applies when the lesson has interactive blocks.
	Completion float64
	// NoInteractive applies when it has none.
	NoInteractive float64
}

// DefaultThresholds mirrors the values the lesson viewer has always used.
var DefaultThresholds = Thresholds{Completion: 85, NoInteractive: 90}

// Accountant tracks completed blocks and decides the single moment a lesson
// becomes complete.
type Accountant struct {
	total       int
	interactive map[int]struct{}
	completed   map[int]struct{}
	percentage  float64
	thresholds  Thresholds
	fired       bool
}

func NewAccountant(blocks []model.Block, th Thresholds) *Accountant {
	a := &Accountant{
		total:       len(blocks),
		interactive: make(map[int]struct{}),
		completed:   make(map[int]struct{}),
		thresholds:  th,
	}
	for i, b := range blocks {
		if b.Type.Interactive() {
			a.interactive[i] = struct{}{}
		}
	}
	return a
}

// MarkComplete records index as done. It reports whether the set changed.
func (a *Accountant) MarkComplete(index int) bool {
	if index < 0 || index >= a.total {
		return false
	}
	if _, ok := a.completed[index]; ok {
		return false
	}
	a.completed[index] = struct{}{}
	return true
}

func (a *Accountant) IsComplete(index int) bool {
	_, ok := a.completed[index]
	return ok
}

// RecordProgress stores the consumption percentage and reports whether this
// call is the one that completed the lesson. Later calls always return false.
func (a *Accountant) RecordProgress(pct float64) bool {
	a.percentage = clampPercent(pct)
	return a.Evaluate()
}

// Evaluate applies the completion predicate to the current state.
func (a *Accountant) Evaluate() bool {
	if a.fired || a.total == 0 {
		return false
	}
	if len(a.interactive) == 0 {
		if a.percentage < a.thresholds.NoInteractive {
			return false
		}
	} else {
		if a.percentage < a.thresholds.Completion {
			return false
		}
		for i := range a.interactive {
			if _, ok := a.completed[i]; !ok {
				return false
			}
		}
	}
	a.fired = true
	return true
}

// Done reports whether completion has fired.
func (a *Accountant) Done() bool {
	return a.fired
}

// Percentage returns the last reported consumption percentage.
func (a *Accountant) Percentage() float64 {
	return a.percentage
}

// Progress derives the block-count progress from the completed set.
func (a *Accountant) Progress() model.ProgressUpdate {
	p := model.ProgressUpdate{Completed: len(a.completed), Total: a.total}
	if a.total > 0 {
		p.Percentage = math.Round(float64(p.Completed)/float64(a.total)*10000) / 100
	}
	return p
}

// InteractiveRemaining counts interactive blocks not yet completed.
func (a *Accountant) InteractiveRemaining() int {
	n := 0
	for i := range a.interactive {
		if _, ok := a.completed[i]; !ok {
			n++
		}
	}
	return n
}

// CompletedIndices returns the completed set in ascending order.
func (a *Accountant) CompletedIndices() []int {
	out := make([]int, 0, len(a.completed))
	for i := range a.completed {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
