package worker

import (
	"context"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/model"
)

// AwardSink persists XP awards. InsertBatch is the fast path; Insert must
// be idempotent per learner, lesson and reason.
type AwardSink interface {
	InsertBatch(ctx context.Context, awards []model.XPAward) error
	Insert(ctx context.Context, a *model.XPAward) error
}

type AwardWorker struct {
	sink AwardSink
	c    *consumer[model.XPAward]
	log  zerolog.Logger
}

func NewAwardWorker(rdb *redis.Client, sink AwardSink, log zerolog.Logger) *AwardWorker {
	w := &AwardWorker{
		sink: sink,
		log:  log.With().Str("component", "award_worker").Logger(),
	}
	w.c = newConsumer(rdb, config.WorkerKey.PersistAwardsQueue, w.persist, w.log)
	return w
}

func (w *AwardWorker) Start(ctx context.Context) {
	w.c.run(ctx)
}

// persist attempts bulk insert, then row-by-row insert, then requeue.
func (w *AwardWorker) persist(ctx context.Context, batch []model.XPAward) []model.XPAward {
	valid := make([]model.XPAward, 0, len(batch))
	for _, a := range batch {
		if _, err := uuid.Parse(a.LessonID); err != nil || a.Amount <= 0 {
			w.log.Error().Str("lesson_id", a.LessonID).Int("amount", a.Amount).Msg("Dropping invalid XP award")
			continue
		}
		valid = append(valid, a)
	}
	if len(valid) == 0 {
		return nil
	}

	// Fast path. A duplicate award fails the whole COPY.
	err := w.sink.InsertBatch(ctx, valid)
	if err == nil {
		return nil
	}
	w.log.Warn().Err(err).Int("count", len(valid)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var retry []model.XPAward
	for _, a := range valid {
		if err := w.sink.Insert(ctx, &a); err != nil {
			w.log.Error().Err(err).Str("learner_id", a.LearnerID).Msg("Insert failed, requeueing")
			retry = append(retry, a)
		}
	}
	return retry
}
