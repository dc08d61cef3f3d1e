package worker

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/model"
)

// CompletionSink persists lesson completions and clears the matching
// bookmarks.
type CompletionSink interface {
	UpsertBatch(ctx context.Context, completions []model.LessonCompletion) error
	Upsert(ctx context.Context, c *model.LessonCompletion) error
}

type CompletionWorker struct {
	rdb  *redis.Client
	sink CompletionSink
	c    *consumer[model.LessonCompletion]
	log  zerolog.Logger
}

func NewCompletionWorker(rdb *redis.Client, sink CompletionSink, log zerolog.Logger) *CompletionWorker {
	w := &CompletionWorker{
		rdb:  rdb,
		sink: sink,
		log:  log.With().Str("component", "completion_worker").Logger(),
	}
	w.c = newConsumer(rdb, config.WorkerKey.PersistCompletionsQueue, w.persist, w.log)
	return w
}

func (w *CompletionWorker) Start(ctx context.Context) {
	w.c.run(ctx)
}

func (w *CompletionWorker) persist(ctx context.Context, batch []model.LessonCompletion) []model.LessonCompletion {
	valid := make([]model.LessonCompletion, 0, len(batch))
	for _, c := range batch {
		if _, err := uuid.Parse(c.LessonID); err != nil {
			w.log.Error().Str("lesson_id", c.LessonID).Msg("Dropping completion with invalid lesson id")
			continue
		}
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		return nil
	}

	err := w.sink.UpsertBatch(ctx, valid)
	if err == nil {
		w.clearMarkers(ctx, valid)
		w.log.Debug().Int("count", len(valid)).Msg("Completions persisted")
		return nil
	}
	w.log.Warn().Err(err).Msg("Bulk completion upsert failed, using fallback")

	var (
		retry []model.LessonCompletion
		done  []model.LessonCompletion
	)
	for _, c := range valid {
		if err := w.sink.Upsert(ctx, &c); err != nil {
			w.log.Error().Err(err).Str("learner_id", c.LearnerID).Msg("Upsert failed, requeueing")
			retry = append(retry, c)
			continue
		}
		done = append(done, c)
	}
	w.clearMarkers(ctx, done)
	return retry
}

// clearMarkers drops the Redis completed markers once PostgreSQL has the rows.
func (w *CompletionWorker) clearMarkers(ctx context.Context, done []model.LessonCompletion) {
	if len(done) == 0 {
		return
	}
	pipe := w.rdb.Pipeline()
	for _, c := range done {
		pipe.Del(ctx, config.CacheKey.LearnerCompletedKey(c.LessonID, c.LearnerID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).Msg("Failed to clear completed markers")
	}
}
