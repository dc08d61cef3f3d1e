package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/model"
	ws "github.com/stemsi/lessonflow/internal/websocket"
)

const (
	// fastLaneTimeout bounds fire-and-forget Redis writes.
	fastLaneTimeout = 500 * time.Millisecond
	liveBookmarkTTL = 7 * 24 * time.Hour
	completedTTL    = 24 * time.Hour
)

// BookmarkWriter persists a bookmark straight to PostgreSQL.
type BookmarkWriter interface {
	Upsert(ctx context.Context, b *model.Bookmark) error
}

// RedisOutbox is the engine's outward sink for one learner in one lesson.
// Learner-facing events go to the session's subscribers; persistence goes
// to Redis and the worker queues. Failures are logged and swallowed, except
// for SaveBookmarkNow.
type RedisOutbox struct {
	rdb       *redis.Client
	bookmarks BookmarkWriter
	publish   func(ws.Event, any)
	clock     func() time.Time
	lessonID  string
	learnerID string
	log       zerolog.Logger
}

func newRedisOutbox(rdb *redis.Client, bookmarks BookmarkWriter, lessonID, learnerID string, publish func(ws.Event, any), clock func() time.Time, log zerolog.Logger) *RedisOutbox {
	if publish == nil {
		publish = func(ws.Event, any) {}
	}
	return &RedisOutbox{
		rdb:       rdb,
		bookmarks: bookmarks,
		publish:   publish,
		clock:     clock,
		lessonID:  lessonID,
		learnerID: learnerID,
		log: log.With().
			Str("component", "outbox").
			Str("lesson_id", lessonID).
			Str("learner_id", learnerID).
			Logger(),
	}
}

func (o *RedisOutbox) fastLane(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), fastLaneTimeout)
}

func (o *RedisOutbox) BlockCompleted(_ context.Context, index int, data model.CompletionData) {
	ev := o.log.Debug().Int("block_index", index)
	if data.Correct != nil {
		ev = ev.Bool("correct", *data.Correct)
	}
	ev.Msg("Block completed")
}

func (o *RedisOutbox) ProgressUpdated(_ context.Context, p model.ProgressUpdate) {
	o.publish(ws.EventProgress, p)
}

func (o *RedisOutbox) AwardXP(ctx context.Context, amount int, reason string) {
	o.publish(ws.EventXP, ws.XPData{Amount: amount, Reason: reason})

	payload, err := json.Marshal(model.XPAward{
		LearnerID: o.learnerID,
		LessonID:  o.lessonID,
		Amount:    amount,
		Reason:    reason,
		AwardedAt: o.clock(),
	})
	if err != nil {
		o.log.Error().Err(err).Msg("Marshal XP award")
		return
	}

	ctx, cancel := o.fastLane(ctx)
	defer cancel()
	if err := o.rdb.RPush(ctx, config.WorkerKey.PersistAwardsQueue, payload).Err(); err != nil {
		o.log.Error().Err(err).Int("amount", amount).Str("reason", reason).Msg("Failed to queue XP award")
	}
}

func (o *RedisOutbox) ShowNotification(_ context.Context, message string, severity model.Severity) {
	o.publish(ws.EventNotification, ws.NotificationData{Message: message, Severity: string(severity)})
}

func (o *RedisOutbox) SaveBookmark(ctx context.Context, b model.Bookmark) {
	ctx, cancel := o.fastLane(ctx)
	defer cancel()
	if err := o.writeBookmark(ctx, b); err != nil {
		o.log.Warn().Err(err).Int("block_index", b.BlockIndex).Msg("Failed to save bookmark")
	}
}

// SaveBookmarkNow writes the bookmark to Redis and PostgreSQL before returning.
func (o *RedisOutbox) SaveBookmarkNow(ctx context.Context, b model.Bookmark) error {
	var errs []error
	if err := o.writeBookmark(ctx, b); err != nil {
		errs = append(errs, err)
	}
	if o.bookmarks != nil {
		if err := o.bookmarks.Upsert(ctx, &b); err != nil {
			errs = append(errs, fmt.Errorf("upsert bookmark: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (o *RedisOutbox) writeBookmark(ctx context.Context, b model.Bookmark) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}

	key := config.CacheKey.LearnerBookmarkKey(b.LessonID, b.LearnerID)
	pipe := o.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"block_index":     b.BlockIndex,
		"scroll_position": b.ScrollPosition,
		"timestamp":       b.Timestamp,
	})
	pipe.Expire(ctx, key, liveBookmarkTTL)
	pipe.RPush(ctx, config.WorkerKey.PersistBookmarksQueue, payload)
	_, err = pipe.Exec(ctx)
	return err
}

// LessonCompleted queues the completion and clears the live bookmark.
func (o *RedisOutbox) LessonCompleted(ctx context.Context, c model.LessonCompletion) {
	payload, err := json.Marshal(c)
	if err != nil {
		o.log.Error().Err(err).Msg("Marshal completion")
		return
	}

	ctx, cancel := o.fastLane(ctx)
	defer cancel()

	pipe := o.rdb.TxPipeline()
	pipe.RPush(ctx, config.WorkerKey.PersistCompletionsQueue, payload)
	pipe.Del(ctx, config.CacheKey.LearnerBookmarkKey(c.LessonID, c.LearnerID))
	pipe.Set(ctx, config.CacheKey.LearnerCompletedKey(c.LessonID, c.LearnerID), c.CompletedAt.UnixMilli(), completedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		o.log.Error().Err(err).Msg("Failed to queue lesson completion")
		return
	}
	o.log.Info().Float64("percentage", c.Percentage).Msg("Lesson completion queued")
}

// loadLiveBookmark reads the bookmark hash written by SaveBookmark.
func loadLiveBookmark(ctx context.Context, rdb *redis.Client, lessonID, learnerID string) (*model.Bookmark, error) {
	fields, err := rdb.HGetAll(ctx, config.CacheKey.LearnerBookmarkKey(lessonID, learnerID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	b := &model.Bookmark{LessonID: lessonID, LearnerID: learnerID}
	if b.BlockIndex, err = strconv.Atoi(fields["block_index"]); err != nil {
		return nil, fmt.Errorf("parse block_index: %w", err)
	}
	if v := fields["scroll_position"]; v != "" {
		if b.ScrollPosition, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("parse scroll_position: %w", err)
		}
	}
	if v := fields["timestamp"]; v != "" {
		if b.Timestamp, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
	}
	return b, nil
}
