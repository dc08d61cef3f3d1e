package worker

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/model"
)

// BookmarkSink persists bookmarks. Upsert must not write a bookmark for a
// lesson the learner has already completed.
type BookmarkSink interface {
	Upsert(ctx context.Context, b *model.Bookmark) error
}

// BookmarkWorker consumes persist_bookmarks_queue and UPSERTs the newest
// bookmark of each learner and lesson to PostgreSQL.
type BookmarkWorker struct {
	rdb  *redis.Client
	sink BookmarkSink
	c    *consumer[model.Bookmark]
	log  zerolog.Logger
}

// NewBookmarkWorker creates a new BookmarkWorker.
func NewBookmarkWorker(rdb *redis.Client, sink BookmarkSink, log zerolog.Logger) *BookmarkWorker {
	w := &BookmarkWorker{
		rdb:  rdb,
		sink: sink,
		log:  log.With().Str("component", "bookmark_worker").Logger(),
	}
	w.c = newConsumer(rdb, config.WorkerKey.PersistBookmarksQueue, w.persist, w.log)
	return w
}

// Start begins the worker loop. Call in a goroutine.
func (w *BookmarkWorker) Start(ctx context.Context) {
	w.c.run(ctx)
}

func (w *BookmarkWorker) persist(ctx context.Context, batch []model.Bookmark) []model.Bookmark {
	var retry []model.Bookmark
	for _, b := range latestBookmarks(batch) {
		if _, err := uuid.Parse(b.LessonID); err != nil {
			w.log.Error().Str("lesson_id", b.LessonID).Msg("Dropping bookmark with invalid lesson id")
			continue
		}
		if w.completed(ctx, b) {
			w.log.Debug().Str("learner_id", b.LearnerID).Msg("Lesson already completed, dropping bookmark")
			continue
		}
		if err := w.sink.Upsert(ctx, &b); err != nil {
			w.log.Error().Err(err).Str("learner_id", b.LearnerID).Msg("Persist error, requeueing")
			retry = append(retry, b)
		}
	}
	return retry
}

// completed checks the Redis marker set when the completion was queued. The
// sink's own guard covers markers already cleared after persistence.
func (w *BookmarkWorker) completed(ctx context.Context, b model.Bookmark) bool {
	n, err := w.rdb.Exists(ctx, config.CacheKey.LearnerCompletedKey(b.LessonID, b.LearnerID)).Result()
	return err == nil && n > 0
}

// latestBookmarks keeps only the newest bookmark per learner and lesson,
// preserving first-seen order.
func latestBookmarks(batch []model.Bookmark) []model.Bookmark {
	type key struct{ lesson, learner string }

	index := make(map[key]int, len(batch))
	out := make([]model.Bookmark, 0, len(batch))
	for _, b := range batch {
		k := key{b.LessonID, b.LearnerID}
		if i, ok := index[k]; ok {
			if b.Timestamp >= out[i].Timestamp {
				out[i] = b
			}
			continue
		}
		index[k] = len(out)
		out = append(out, b)
	}
	return out
}
