package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/lessonflow/internal/model"
)

func TestAccountant_FiresExactlyOnce(t *testing.T) {
	a := NewAccountant([]model.Block{textBlock("a"), quizBlock("q")}, DefaultThresholds)
	a.MarkComplete(1)

	fired := 0
	for _, pct := range []float64{85, 90, 100, 100, 99} {
		if a.RecordProgress(pct) {
			fired++
		}
	}

	assert.Equal(t, 1, fired)
	assert.True(t, a.Done())
	assert.False(t, a.Evaluate())
}

func TestAccountant_RequiresAllInteractiveBlocks(t *testing.T) {
	a := NewAccountant([]model.Block{
		textBlock("a"), quizBlock("q"), sandboxBlock("s"), fillBlock("f", false),
	}, DefaultThresholds)

	a.MarkComplete(1)
	a.MarkComplete(2)
	assert.False(t, a.RecordProgress(100))
	assert.Equal(t, 1, a.InteractiveRemaining())

	a.MarkComplete(3)
	assert.False(t, a.RecordProgress(84.9))
	assert.True(t, a.RecordProgress(85))
}

func TestAccountant_NoInteractiveUsesHigherThreshold(t *testing.T) {
	a := NewAccountant([]model.Block{textBlock("a"), textBlock("b")}, DefaultThresholds)

	assert.False(t, a.RecordProgress(85))
	assert.False(t, a.RecordProgress(89.99))
	assert.True(t, a.RecordProgress(90))
}

func TestAccountant_ConfigurableThresholds(t *testing.T) {
	a := NewAccountant([]model.Block{textBlock("a")}, Thresholds{Completion: 50, NoInteractive: 60})

	assert.False(t, a.RecordProgress(55))
	assert.True(t, a.RecordProgress(60))
}

func TestAccountant_ProgressAndClamping(t *testing.T) {
	a := NewAccountant([]model.Block{textBlock("a"), textBlock("b"), textBlock("c")}, DefaultThresholds)

	assert.True(t, a.MarkComplete(0))
	assert.False(t, a.MarkComplete(0))
	assert.False(t, a.MarkComplete(7))
	assert.False(t, a.MarkComplete(-1))

	p := a.Progress()
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 3, p.Total)
	assert.InDelta(t, 33.33, p.Percentage, 0.001)

	a.RecordProgress(-5)
	assert.Zero(t, a.Percentage())
	a.RecordProgress(math.NaN())
	assert.Zero(t, a.Percentage())
	a.RecordProgress(250)
	assert.Equal(t, 100.0, a.Percentage())
	assert.Equal(t, []int{0}, a.CompletedIndices())
}
