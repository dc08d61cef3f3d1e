package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// LessonDocumentKey returns the cache key for a lesson's raw document.
func (r *CacheKeyStruct) LessonDocumentKey(lessonID string) string {
	return fmt.Sprintf("lesson:%s:document", lessonID)
}

// LearnerBookmarkKey returns the hash key holding a learner's live bookmark for a lesson.
func (r *CacheKeyStruct) LearnerBookmarkKey(lessonID, learnerID string) string {
	return fmt.Sprintf("learner:%s:lesson:%s:bookmark", learnerID, lessonID)
}

// LearnerCompletedKey marks a lesson as completed for a learner until the worker persists it.
func (r *CacheKeyStruct) LearnerCompletedKey(lessonID, learnerID string) string {
	return fmt.Sprintf("learner:%s:lesson:%s:completed", learnerID, lessonID)
}

var CacheKey = NewCacheKeyStruct()

// WorkerKeyStruct names the Redis lists drained by the persistence workers.
type WorkerKeyStruct struct {
	PersistBookmarksQueue   string
	PersistAwardsQueue      string
	PersistCompletionsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistBookmarksQueue:   "persist_bookmarks_queue",
	PersistAwardsQueue:      "persist_awards_queue",
	PersistCompletionsQueue: "persist_completions_queue",
}
