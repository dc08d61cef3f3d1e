package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/engine"
	"github.com/stemsi/lessonflow/internal/model"
)

// ErrLessonNotFound means no lesson exists with the requested id.
var ErrLessonNotFound = errors.New("lesson not found")

// LessonStore is the persistence collaborator that returns raw lessons.
type LessonStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Lesson, error)
	ListPublished(ctx context.Context) ([]model.Lesson, error)
}

// LessonService loads lesson documents, keeping them hot in Redis.
type LessonService struct {
	store LessonStore
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewLessonService creates a new LessonService.
func NewLessonService(store LessonStore, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *LessonService {
	return &LessonService{
		store: store,
		rdb:   rdb,
		ttl:   ttl,
		log:   log.With().Str("component", "lesson_service").Logger(),
	}
}

// Load returns the lesson document, from cache when possible. A corrupt
// cache entry is dropped and reloaded from PostgreSQL.
func (s *LessonService) Load(ctx context.Context, id uuid.UUID) (model.LessonDocument, error) {
	key := config.CacheKey.LessonDocumentKey(id.String())

	data, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		doc, perr := engine.ParseDocument(data)
		if perr == nil {
			return doc, nil
		}
		s.log.Warn().Err(perr).Str("lesson_id", id.String()).Msg("Dropping corrupt cached document")
		s.rdb.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("lesson_id", id.String()).Msg("Cache read failed, falling back to database")
	}

	lesson, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.LessonDocument{}, ErrLessonNotFound
		}
		return model.LessonDocument{}, fmt.Errorf("get lesson: %w", err)
	}

	doc, err := s.Warm(ctx, lesson)
	if err != nil && !errors.Is(err, errCacheWrite) {
		return model.LessonDocument{}, err
	}
	return doc, nil
}

var errCacheWrite = errors.New("cache write failed")

// Warm parses a lesson row and stores the normalized document in Redis.
func (s *LessonService) Warm(ctx context.Context, lesson *model.Lesson) (model.LessonDocument, error) {
	doc, err := engine.ParseDocument(lesson.Document)
	if err != nil {
		return doc, err
	}
	if doc.Title == "" {
		doc.Title = lesson.Title
	}
	if doc.AudioURL == "" && lesson.AudioURL != nil {
		doc.AudioURL = *lesson.AudioURL
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return doc, fmt.Errorf("marshal document: %w", err)
	}
	key := config.CacheKey.LessonDocumentKey(lesson.ID.String())
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("lesson_id", lesson.ID.String()).Msg("Failed to cache document")
		return doc, fmt.Errorf("%w: %v", errCacheWrite, err)
	}
	return doc, nil
}

// List returns summaries of every published lesson.
func (s *LessonService) List(ctx context.Context) ([]model.LessonSummary, error) {
	lessons, err := s.store.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published lessons: %w", err)
	}

	out := make([]model.LessonSummary, 0, len(lessons))
	for _, l := range lessons {
		sum := model.LessonSummary{ID: l.ID.String(), Title: l.Title, HasAudio: l.AudioURL != nil && *l.AudioURL != ""}
		if doc, err := engine.ParseDocument(l.Document); err == nil {
			sum.Premium = doc.Tiered()
			sum.HasAudio = sum.HasAudio || doc.AudioURL != ""
		}
		out = append(out, sum)
	}
	return out, nil
}

// Invalidate drops the cached document so the next Load reads PostgreSQL.
func (s *LessonService) Invalidate(ctx context.Context, id uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.LessonDocumentKey(id.String())).Err()
}

// PrewarmAllCaches loads every published lesson into Redis on startup.
func (s *LessonService) PrewarmAllCaches(ctx context.Context) error {
	lessons, err := s.store.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published lessons: %w", err)
	}

	if len(lessons) == 0 {
		s.log.Info().Msg("No published lessons to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(lessons)).Msg("Prewarming published lessons...")

	warmed := 0
	for i := range lessons {
		if _, err := s.Warm(ctx, &lessons[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("lesson_id", lessons[i].ID.String()).
				Msg("Failed to warm lesson, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(lessons)).
		Msg("Prewarming complete")
	return nil
}
