package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoader_ScrollWithLookAhead(t *testing.T) {
	l := NewLoader(10, DefaultLoaderConfig)
	assert.Equal(t, []int{0, 1, 2}, l.Visible())

	added := l.Enter(4)

	assert.Equal(t, []int{4, 5, 6}, added)
	assert.Subset(t, l.Visible(), []int{0, 1, 2, 4, 5, 6})
	assert.False(t, l.Mounted(3))
	assert.False(t, l.Mounted(7))
}

func TestLoader_GrowsMonotonically(t *testing.T) {
	l := NewLoader(6, DefaultLoaderConfig)

	l.Enter(3)
	before := l.Visible()
	assert.Empty(t, l.Enter(4))
	assert.Equal(t, []int{5}, l.Enter(5))
	assert.Subset(t, l.Visible(), before)
}

func TestLoader_ClampsToLessonLength(t *testing.T) {
	l := NewLoader(5, DefaultLoaderConfig)

	assert.Equal(t, []int{3, 4}, l.Enter(3))
	assert.Nil(t, l.Enter(5))
	assert.Nil(t, l.Enter(-1))

	small := NewLoader(2, DefaultLoaderConfig)
	assert.Equal(t, []int{0, 1}, small.Visible())
}

func TestLoader_DisabledMountsEverything(t *testing.T) {
	cfg := DefaultLoaderConfig
	cfg.Enabled = false

	l := NewLoader(8, cfg)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, l.Visible())
	assert.Empty(t, l.Enter(6))
}

func TestLoader_Placeholder(t *testing.T) {
	cfg := DefaultLoaderConfig
	cfg.PlaceholderHeight = 320

	l := NewLoader(4, cfg)

	assert.Equal(t, &Placeholder{Height: 320}, l.placeholder())
	assert.Equal(t, 240, NewLoader(4, DefaultLoaderConfig).placeholder().Height)
}
