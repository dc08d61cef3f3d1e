package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/lessonflow/internal/model"
)

// LessonRepository handles lesson document access.
type LessonRepository struct {
	pool *pgxpool.Pool
}

// NewLessonRepository creates a new LessonRepository.
func NewLessonRepository(pool *pgxpool.Pool) *LessonRepository {
	return &LessonRepository{pool: pool}
}

// GetByID retrieves a lesson with its raw document.
func (r *LessonRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Lesson, error) {
	l := &model.Lesson{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, audio_url, document, created_at, updated_at
		 FROM lessons
		 WHERE id = $1`, id,
	).Scan(&l.ID, &l.Title, &l.AudioURL, &l.Document, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// ListPublished retrieves every published lesson, most recently updated first.
func (r *LessonRepository) ListPublished(ctx context.Context) ([]model.Lesson, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, audio_url, document, created_at, updated_at
		 FROM lessons
		 WHERE published = TRUE
		 ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []model.Lesson
	for rows.Next() {
		var l model.Lesson
		if err := rows.Scan(&l.ID, &l.Title, &l.AudioURL, &l.Document, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

// Upsert creates or replaces a lesson document and publishes it.
func (r *LessonRepository) Upsert(ctx context.Context, l *model.Lesson) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO lessons (id, title, audio_url, document, published)
		 VALUES ($1, $2, $3, $4, TRUE)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title,
		     audio_url = EXCLUDED.audio_url,
		     document = EXCLUDED.document,
		     published = TRUE,
		     updated_at = NOW()
		 RETURNING created_at, updated_at`,
		l.ID, l.Title, l.AudioURL, l.Document,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}
