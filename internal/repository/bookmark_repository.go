package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/lessonflow/internal/model"
)

// BookmarkRepository handles learner bookmark persistence.
type BookmarkRepository struct {
	pool *pgxpool.Pool
}

// NewBookmarkRepository creates a new BookmarkRepository.
func NewBookmarkRepository(pool *pgxpool.Pool) *BookmarkRepository {
	return &BookmarkRepository{pool: pool}
}

// Get retrieves the stored bookmark for a learner in a lesson.
func (r *BookmarkRepository) Get(ctx context.Context, lessonID uuid.UUID, learnerID string) (*model.Bookmark, error) {
	var (
		b         = &model.Bookmark{LessonID: lessonID.String(), LearnerID: learnerID}
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT block_index, scroll_position, updated_at
		 FROM lesson_bookmarks
		 WHERE lesson_id = $1 AND learner_id = $2`, lessonID, learnerID,
	).Scan(&b.BlockIndex, &b.ScrollPosition, &updatedAt)
	if err != nil {
		return nil, err
	}
	b.Timestamp = updatedAt.UnixMilli()
	return b, nil
}

// Upsert writes a bookmark unless a newer one is already stored or the
// lesson is already completed for the learner.
func (r *BookmarkRepository) Upsert(ctx context.Context, b *model.Bookmark) error {
	lessonID, err := uuid.Parse(b.LessonID)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO lesson_bookmarks (lesson_id, learner_id, block_index, scroll_position, updated_at)
		 SELECT $1::uuid, $2::text, $3::int, $4::float8, $5::timestamptz
		 WHERE NOT EXISTS (
		     SELECT 1 FROM lesson_completions c
		     WHERE c.lesson_id = $1::uuid AND c.learner_id = $2::text
		 )
		 ON CONFLICT (lesson_id, learner_id) DO UPDATE
		 SET block_index = EXCLUDED.block_index,
		     scroll_position = EXCLUDED.scroll_position,
		     updated_at = EXCLUDED.updated_at
		 WHERE lesson_bookmarks.updated_at <= EXCLUDED.updated_at`,
		lessonID, b.LearnerID, b.BlockIndex, b.ScrollPosition, b.Time(),
	)
	return err
}

// Delete clears a learner's bookmark, used once the lesson is completed.
func (r *BookmarkRepository) Delete(ctx context.Context, lessonID uuid.UUID, learnerID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM lesson_bookmarks WHERE lesson_id = $1 AND learner_id = $2`,
		lessonID, learnerID)
	return err
}
