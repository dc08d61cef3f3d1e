package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/model"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func rawBlock(id, typ string, content any) model.RawBlock {
	return model.RawBlock{ID: id, Type: typ, Content: model.MustContent(content)}
}

// sampleDocument: title heading, text, quiz gate, gated text.
func sampleDocument() model.LessonDocument {
	return model.LessonDocument{
		Title: "Pengenalan Go",
		Content: []model.Page{{
			Blocks: []model.RawBlock{
				rawBlock("h1", "heading", model.HeadingContent{Text: "Pengenalan Go", Level: 1}),
				rawBlock("t1", "text", model.TextContent{Text: "Go adalah bahasa pemrograman."}),
				rawBlock("q1", "quiz", model.QuizContent{
					Question:           "Siapa pembuat Go?",
					Options:            []string{"Microsoft", "Google", "Apple"},
					CorrectAnswerIndex: 1,
					CorrectFeedback:    "Tepat!",
					IncorrectFeedback:  "Kurang tepat.",
				}),
				rawBlock("t2", "text", model.TextContent{Text: "Go dirilis tahun 2009."}),
			},
		}},
	}
}

func sampleLesson(t *testing.T, doc model.LessonDocument) *model.Lesson {
	t.Helper()
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	return &model.Lesson{ID: uuid.New(), Title: doc.Title, Document: raw}
}

type fakeLessonStore struct {
	mu      sync.Mutex
	lessons map[uuid.UUID]*model.Lesson
	gets    int
}

func newFakeLessonStore(lessons ...*model.Lesson) *fakeLessonStore {
	s := &fakeLessonStore{lessons: make(map[uuid.UUID]*model.Lesson)}
	for _, l := range lessons {
		s.lessons[l.ID] = l
	}
	return s
}

func (s *fakeLessonStore) GetByID(_ context.Context, id uuid.UUID) (*model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	l, ok := s.lessons[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return l, nil
}

func (s *fakeLessonStore) ListPublished(_ context.Context) ([]model.Lesson, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Lesson, 0, len(s.lessons))
	for _, l := range s.lessons {
		out = append(out, *l)
	}
	return out, nil
}

type fakeBookmarkStore struct {
	mu     sync.Mutex
	stored map[string]model.Bookmark
	err    error
}

func newFakeBookmarkStore() *fakeBookmarkStore {
	return &fakeBookmarkStore{stored: make(map[string]model.Bookmark)}
}

func (s *fakeBookmarkStore) Get(_ context.Context, lessonID uuid.UUID, learnerID string) (*model.Bookmark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.stored[lessonID.String()+learnerID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &b, nil
}

func (s *fakeBookmarkStore) Upsert(_ context.Context, b *model.Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.stored[b.LessonID+b.LearnerID] = *b
	return nil
}

type fakeCompletionStore struct {
	done map[string]bool
}

func (s *fakeCompletionStore) Get(_ context.Context, lessonID uuid.UUID, learnerID string) (*model.LessonCompletion, error) {
	if !s.done[lessonID.String()+learnerID] {
		return nil, nil
	}
	return &model.LessonCompletion{LessonID: lessonID.String(), LearnerID: learnerID, Percentage: 100}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:             "development",
		LessonCacheTTL:     time.Hour,
		SessionIdleTimeout: 30 * time.Minute,
		Engine: config.EngineConfig{
			CompletionThreshold:    85,
			NoInteractiveThreshold: 90,
			LazyLoading:            true,
			PreloadOffset:          2,
			InitialEagerBlocks:     3,
			PlaceholderHeight:      240,
			CutPointTolerance:      1,
			AudioResumeDelay:       2 * time.Second,
			AudioAutoScroll:        true,
			XPQuiz:                 10,
			XPFillBlank:            10,
			XPSandbox:              15,
			XPLessonComplete:       50,
		},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var nopLog = zerolog.Nop()
