package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEngineDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 85.0, cfg.Engine.CompletionThreshold)
	assert.Equal(t, 90.0, cfg.Engine.NoInteractiveThreshold)
	assert.Equal(t, 2, cfg.Engine.PreloadOffset)
	assert.Equal(t, 3, cfg.Engine.InitialEagerBlocks)
	assert.True(t, cfg.Engine.LazyLoading)
	assert.Equal(t, 240, cfg.Engine.PlaceholderHeight)
	assert.Equal(t, 1.0, cfg.Engine.CutPointTolerance)
	assert.Equal(t, 2*time.Second, cfg.Engine.AudioResumeDelay)
	assert.False(t, cfg.IsProduction())
}

func TestLoadEngineOverrides(t *testing.T) {
	t.Setenv("COMPLETION_THRESHOLD", "70.5")
	t.Setenv("LAZY_LOADING", "false")
	t.Setenv("PRELOAD_OFFSET", "not-a-number")
	t.Setenv("APP_ENV", "Production")

	cfg := Load()

	assert.Equal(t, 70.5, cfg.Engine.CompletionThreshold)
	assert.False(t, cfg.Engine.LazyLoading)
	assert.Equal(t, 2, cfg.Engine.PreloadOffset, "invalid ints fall back to the default")
	assert.True(t, cfg.IsProduction())
}

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins(""))
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, parseOrigins(" https://a.test , ,https://b.test"))
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "lesson:l1:document", CacheKey.LessonDocumentKey("l1"))
	assert.Equal(t, "learner:u9:lesson:l1:bookmark", CacheKey.LearnerBookmarkKey("l1", "u9"))
}
