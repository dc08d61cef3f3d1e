package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis

	shutdownGrace = 5 * time.Second
	// drainLimit caps how many queued items are flushed on shutdown; the
	// rest stays in Redis for the next process.
	drainLimit = 20 * BatchSize
)

// flushFunc persists a batch and returns the items worth retrying.
// Items that can never succeed are dropped by the flushFunc itself.
type flushFunc[T any] func(ctx context.Context, batch []T) (retry []T)

// consumer pops JSON items off a Redis list and flushes them in batches,
// by size or by age. Failed items go back to the tail of the list.
type consumer[T any] struct {
	rdb   *redis.Client
	queue string
	flush flushFunc[T]
	log   zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	backoff      time.Duration
}

func newConsumer[T any](rdb *redis.Client, queue string, flush flushFunc[T], log zerolog.Logger) *consumer[T] {
	return &consumer[T]{
		rdb:          rdb,
		queue:        queue,
		flush:        flush,
		log:          log,
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		backoff:      2 * time.Second,
	}
}

func (c *consumer[T]) run(ctx context.Context) {
	c.log.Info().Str("queue", c.queue).Msg("Worker started")

	buffer := make([]T, 0, c.batchSize)
	lastFlush := time.Now()

	for {
		// 1. Flush by size or age
		if len(buffer) > 0 && (len(buffer) >= c.batchSize || time.Since(lastFlush) >= c.batchTimeout) {
			if !c.flushSafe(ctx, buffer) {
				// Give the database a moment before hammering it again.
				c.sleep(ctx, c.backoff)
			}
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			c.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch. BLPop returns immediately if data exists.
		result, err := c.rdb.BLPop(ctx, PollTimeout, c.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.Error().Err(err).Msg("Redis connection error, backing off")
			c.sleep(ctx, c.backoff)
			continue
		}
		if len(result) < 2 {
			continue
		}

		if item, ok := c.decode(result[1]); ok {
			buffer = append(buffer, item)
		}
	}
}

func (c *consumer[T]) decode(raw string) (T, bool) {
	var item T
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		// Malformed JSON can never be retried.
		c.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed payload")
		return item, false
	}
	return item, true
}

// flushSafe reports whether every item was persisted.
func (c *consumer[T]) flushSafe(ctx context.Context, batch []T) bool {
	if len(batch) == 0 {
		return true
	}
	retry := c.flush(ctx, batch)
	if len(retry) == 0 {
		return true
	}
	c.requeue(retry)
	return false
}

func (c *consumer[T]) requeue(items []T) {
	// The worker context may already be cancelled; requeueing must not be.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	pipe := c.rdb.Pipeline()
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, c.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	c.log.Warn().Int("count", len(items)).Msg("Requeued failed items")
}

// shutdown flushes the in-memory buffer and then drains what is left in
// the queue, bounded by shutdownGrace.
func (c *consumer[T]) shutdown(buffer []T) {
	c.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if !c.flushSafe(ctx, buffer) {
		c.log.Info().Msg("Worker stopped")
		return
	}

	drained := 0
	batch := make([]T, 0, c.batchSize)
	for drained < drainLimit && ctx.Err() == nil {
		raw, err := c.rdb.LPop(ctx, c.queue).Result()
		if err != nil {
			break
		}
		if item, ok := c.decode(raw); ok {
			batch = append(batch, item)
			drained++
		}
		if len(batch) >= c.batchSize {
			if !c.flushSafe(ctx, batch) {
				batch = batch[:0]
				break
			}
			batch = batch[:0]
		}
	}
	c.flushSafe(ctx, batch)

	if drained > 0 {
		c.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
	c.log.Info().Msg("Worker stopped")
}

func (c *consumer[T]) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
