package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func push(t *testing.T, rdb *redis.Client, queue string, items ...any) {
	t.Helper()
	for _, item := range items {
		var data []byte
		if s, ok := item.(string); ok {
			data = []byte(s)
		} else {
			var err error
			data, err = json.Marshal(item)
			require.NoError(t, err)
		}
		require.NoError(t, rdb.RPush(context.Background(), queue, data).Err())
	}
}

// ─── Fake sinks ─────────────────────────────────────────────────────────────

type fakeBookmarkSink struct {
	mu    sync.Mutex
	saved []model.Bookmark
	fail  bool
}

func (f *fakeBookmarkSink) Upsert(_ context.Context, b *model.Bookmark) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("db down")
	}
	f.saved = append(f.saved, *b)
	return nil
}

func (f *fakeBookmarkSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeAwardSink struct {
	mu        sync.Mutex
	batches   int
	rows      []model.XPAward
	batchErr  error
	rejectFor string
}

func (f *fakeAwardSink) InsertBatch(_ context.Context, awards []model.XPAward) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.batchErr != nil {
		return f.batchErr
	}
	f.rows = append(f.rows, awards...)
	return nil
}

func (f *fakeAwardSink) Insert(_ context.Context, a *model.XPAward) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.LearnerID == f.rejectFor {
		return errors.New("constraint violation")
	}
	f.rows = append(f.rows, *a)
	return nil
}

type fakeCompletionSink struct {
	mu       sync.Mutex
	rows     []model.LessonCompletion
	batchErr error
}

func (f *fakeCompletionSink) UpsertBatch(_ context.Context, cs []model.LessonCompletion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return f.batchErr
	}
	f.rows = append(f.rows, cs...)
	return nil
}

func (f *fakeCompletionSink) Upsert(_ context.Context, c *model.LessonCompletion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *c)
	return nil
}

// progressStore is one table pair shared by both workers. It keeps the
// repository rules: completing drops the bookmark and a completed lesson
// takes no new bookmark.
type progressStore struct {
	mu          sync.Mutex
	bookmarks   map[string]model.Bookmark
	completions map[string]model.LessonCompletion
}

func newProgressStore() *progressStore {
	return &progressStore{
		bookmarks:   make(map[string]model.Bookmark),
		completions: make(map[string]model.LessonCompletion),
	}
}

func (s *progressStore) Upsert(_ context.Context, b *model.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := b.LessonID + ":" + b.LearnerID
	if _, done := s.completions[k]; done {
		return nil
	}
	s.bookmarks[k] = *b
	return nil
}

func (s *progressStore) UpsertBatch(_ context.Context, cs []model.LessonCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cs {
		k := c.LessonID + ":" + c.LearnerID
		s.completions[k] = c
		delete(s.bookmarks, k)
	}
	return nil
}

type completionStore struct{ *progressStore }

func (s completionStore) Upsert(ctx context.Context, c *model.LessonCompletion) error {
	return s.UpsertBatch(ctx, []model.LessonCompletion{*c})
}

// ─── Bookmarks ──────────────────────────────────────────────────────────────

func TestLatestBookmarks(t *testing.T) {
	lesson := uuid.NewString()
	batch := []model.Bookmark{
		{LessonID: lesson, LearnerID: "a", BlockIndex: 1, Timestamp: 100},
		{LessonID: lesson, LearnerID: "b", BlockIndex: 4, Timestamp: 100},
		{LessonID: lesson, LearnerID: "a", BlockIndex: 3, Timestamp: 300},
		{LessonID: lesson, LearnerID: "a", BlockIndex: 2, Timestamp: 200},
	}

	out := latestBookmarks(batch)

	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].LearnerID)
	assert.Equal(t, 3, out[0].BlockIndex)
	assert.Equal(t, "b", out[1].LearnerID)
}

func TestBookmarkWorker_FlushesByAge(t *testing.T) {
	_, rdb := newTestRedis(t)
	sink := &fakeBookmarkSink{}
	w := NewBookmarkWorker(rdb, sink, zerolog.Nop())
	w.c.batchTimeout = 10 * time.Millisecond

	lesson := uuid.NewString()
	push(t, rdb, config.WorkerKey.PersistBookmarksQueue,
		model.Bookmark{LessonID: lesson, LearnerID: "a", BlockIndex: 2, Timestamp: 1},
		"{not json",
		model.Bookmark{LessonID: "nope", LearnerID: "b", Timestamp: 1},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sink.count() == 1 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Zero(t, rdb.LLen(context.Background(), config.WorkerKey.PersistBookmarksQueue).Val())
}

func TestBookmarkWorker_RequeuesOnFailure(t *testing.T) {
	_, rdb := newTestRedis(t)
	sink := &fakeBookmarkSink{fail: true}
	w := NewBookmarkWorker(rdb, sink, zerolog.Nop())

	b := model.Bookmark{LessonID: uuid.NewString(), LearnerID: "a", Timestamp: 1}
	ok := w.c.flushSafe(context.Background(), []model.Bookmark{b})

	assert.False(t, ok)
	raw, err := rdb.LRange(context.Background(), config.WorkerKey.PersistBookmarksQueue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, raw, 1)

	var got model.Bookmark
	require.NoError(t, json.Unmarshal([]byte(raw[0]), &got))
	assert.Equal(t, b, got)
}

func TestBookmarkWorker_SkipsLessonWithCompletedMarker(t *testing.T) {
	mr, rdb := newTestRedis(t)
	sink := &fakeBookmarkSink{}
	w := NewBookmarkWorker(rdb, sink, zerolog.Nop())

	lesson := uuid.NewString()
	require.NoError(t, mr.Set(config.CacheKey.LearnerCompletedKey(lesson, "a"), "1"))

	retry := w.persist(context.Background(), []model.Bookmark{
		{LessonID: lesson, LearnerID: "a", BlockIndex: 3, Timestamp: 1},
		{LessonID: lesson, LearnerID: "b", BlockIndex: 1, Timestamp: 1},
	})

	assert.Empty(t, retry)
	require.Len(t, sink.saved, 1)
	assert.Equal(t, "b", sink.saved[0].LearnerID)
}

func TestWorkers_StaleBookmarkAfterCompletionIsDropped(t *testing.T) {
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	store := newProgressStore()
	bookmarks := NewBookmarkWorker(rdb, store, zerolog.Nop())
	completions := NewCompletionWorker(rdb, completionStore{store}, zerolog.Nop())

	lesson := uuid.NewString()
	early := model.Bookmark{LessonID: lesson, LearnerID: "a", BlockIndex: 2, Timestamp: 10}
	done := model.LessonCompletion{LessonID: lesson, LearnerID: "a", Percentage: 100, CompletedAt: time.Now()}

	// The completion commits first and clears its marker, then the bookmark
	// queued before it is flushed.
	require.Empty(t, completions.persist(ctx, []model.LessonCompletion{done}))
	require.Empty(t, bookmarks.persist(ctx, []model.Bookmark{early}))

	assert.Empty(t, store.bookmarks)
	assert.Len(t, store.completions, 1)

	// The other order ends the same way.
	other := uuid.NewString()
	require.Empty(t, bookmarks.persist(ctx, []model.Bookmark{{LessonID: other, LearnerID: "a", Timestamp: 10}}))
	require.Len(t, store.bookmarks, 1)
	require.Empty(t, completions.persist(ctx, []model.LessonCompletion{{LessonID: other, LearnerID: "a", CompletedAt: time.Now()}}))
	assert.Empty(t, store.bookmarks)
}

func TestConsumer_ShutdownDrainsQueue(t *testing.T) {
	_, rdb := newTestRedis(t)
	sink := &fakeBookmarkSink{}
	w := NewBookmarkWorker(rdb, sink, zerolog.Nop())
	w.c.batchSize = 2

	lesson := uuid.NewString()
	push(t, rdb, config.WorkerKey.PersistBookmarksQueue,
		model.Bookmark{LessonID: lesson, LearnerID: "b", Timestamp: 1},
		model.Bookmark{LessonID: lesson, LearnerID: "c", Timestamp: 1},
		model.Bookmark{LessonID: lesson, LearnerID: "d", Timestamp: 1},
	)

	w.c.shutdown([]model.Bookmark{{LessonID: lesson, LearnerID: "a", Timestamp: 1}})

	assert.Equal(t, 4, sink.count())
	assert.Zero(t, rdb.LLen(context.Background(), config.WorkerKey.PersistBookmarksQueue).Val())
}

func TestConsumer_ShutdownStopsDrainOnFailure(t *testing.T) {
	_, rdb := newTestRedis(t)
	sink := &fakeBookmarkSink{fail: true}
	w := NewBookmarkWorker(rdb, sink, zerolog.Nop())

	lesson := uuid.NewString()
	push(t, rdb, config.WorkerKey.PersistBookmarksQueue,
		model.Bookmark{LessonID: lesson, LearnerID: "b", Timestamp: 1},
	)

	w.c.shutdown([]model.Bookmark{{LessonID: lesson, LearnerID: "a", Timestamp: 1}})

	// The failed buffer is requeued behind the untouched item.
	assert.EqualValues(t, 2, rdb.LLen(context.Background(), config.WorkerKey.PersistBookmarksQueue).Val())
}

// ─── Awards ─────────────────────────────────────────────────────────────────

func TestAwardWorker_BulkInsert(t *testing.T) {
	_, rdb := newTestRedis(t)
	sink := &fakeAwardSink{}
	w := NewAwardWorker(rdb, sink, zerolog.Nop())

	lesson := uuid.NewString()
	retry := w.persist(context.Background(), []model.XPAward{
		{LearnerID: "a", LessonID: lesson, Amount: 10, Reason: "block:2"},
		{LearnerID: "a", LessonID: lesson, Amount: 0, Reason: "block:3"},
		{LearnerID: "b", LessonID: "bad", Amount: 10, Reason: "block:2"},
	})

	assert.Empty(t, retry)
	assert.Equal(t, 1, sink.batches)
	require.Len(t, sink.rows, 1)
	assert.Equal(t, "block:2", sink.rows[0].Reason)
}

func TestAwardWorker_FallsBackRowByRow(t *testing.T) {
	_, rdb := newTestRedis(t)
	sink := &fakeAwardSink{batchErr: errors.New("duplicate key"), rejectFor: "b"}
	w := NewAwardWorker(rdb, sink, zerolog.Nop())

	lesson := uuid.NewString()
	retry := w.persist(context.Background(), []model.XPAward{
		{LearnerID: "a", LessonID: lesson, Amount: 10, Reason: "block:2"},
		{LearnerID: "b", LessonID: lesson, Amount: 10, Reason: "block:2"},
	})

	require.Len(t, retry, 1)
	assert.Equal(t, "b", retry[0].LearnerID)
	require.Len(t, sink.rows, 1)
	assert.Equal(t, "a", sink.rows[0].LearnerID)
}

// ─── Completions ────────────────────────────────────────────────────────────

func TestCompletionWorker_ClearsMarkers(t *testing.T) {
	mr, rdb := newTestRedis(t)
	sink := &fakeCompletionSink{}
	w := NewCompletionWorker(rdb, sink, zerolog.Nop())

	lesson := uuid.NewString()
	key := config.CacheKey.LearnerCompletedKey(lesson, "a")
	require.NoError(t, mr.Set(key, "1"))

	retry := w.persist(context.Background(), []model.LessonCompletion{
		{LessonID: lesson, LearnerID: "a", Percentage: 100, CompletedAt: time.Now()},
	})

	assert.Empty(t, retry)
	assert.Len(t, sink.rows, 1)
	assert.False(t, mr.Exists(key))
}

func TestCompletionWorker_FallbackAfterBatchFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	sink := &fakeCompletionSink{batchErr: errors.New("tx aborted")}
	w := NewCompletionWorker(rdb, sink, zerolog.Nop())

	lesson := uuid.NewString()
	key := config.CacheKey.LearnerCompletedKey(lesson, "a")
	require.NoError(t, mr.Set(key, "1"))

	retry := w.persist(context.Background(), []model.LessonCompletion{
		{LessonID: lesson, LearnerID: "a", Percentage: 100, CompletedAt: time.Now()},
		{LessonID: "bad", LearnerID: "b", Percentage: 100, CompletedAt: time.Now()},
	})

	assert.Empty(t, retry)
	require.Len(t, sink.rows, 1)
	assert.Equal(t, "a", sink.rows[0].LearnerID)
	assert.False(t, mr.Exists(key))
}
