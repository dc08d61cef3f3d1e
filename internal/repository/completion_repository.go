package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/lessonflow/internal/model"
)

// CompletionRepository handles lesson completion records.
type CompletionRepository struct {
	pool *pgxpool.Pool
}

// NewCompletionRepository creates a new CompletionRepository.
func NewCompletionRepository(pool *pgxpool.Pool) *CompletionRepository {
	return &CompletionRepository{pool: pool}
}

// Get retrieves the completion record, or nil when the lesson is not completed.
func (r *CompletionRepository) Get(ctx context.Context, lessonID uuid.UUID, learnerID string) (*model.LessonCompletion, error) {
	c := &model.LessonCompletion{LessonID: lessonID.String(), LearnerID: learnerID}
	err := r.pool.QueryRow(ctx,
		`SELECT percentage, completed_at
		 FROM lesson_completions
		 WHERE lesson_id = $1 AND learner_id = $2`, lessonID, learnerID,
	).Scan(&c.Percentage, &c.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Upsert records a completion and drops the learner's bookmark, which has
// no use once the lesson is done. The first completion time is kept.
func (r *CompletionRepository) Upsert(ctx context.Context, c *model.LessonCompletion) error {
	return r.UpsertBatch(ctx, []model.LessonCompletion{*c})
}

// UpsertBatch is Upsert for many completions in a single transaction.
func (r *CompletionRepository) UpsertBatch(ctx context.Context, completions []model.LessonCompletion) error {
	n := len(completions)
	lessonIDs := make([]uuid.UUID, 0, n)
	learners := make([]string, 0, n)
	percentages := make([]float64, 0, n)
	completedAts := make([]time.Time, 0, n)
	for _, c := range completions {
		id, err := uuid.Parse(c.LessonID)
		if err != nil {
			return err
		}
		lessonIDs = append(lessonIDs, id)
		learners = append(learners, c.LearnerID)
		percentages = append(percentages, c.Percentage)
		completedAts = append(completedAts, c.CompletedAt)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO lesson_completions (lesson_id, learner_id, percentage, completed_at)
		 SELECT u.lesson_id, u.learner_id, u.percentage, u.completed_at
		 FROM UNNEST($1::uuid[], $2::text[], $3::float8[], $4::timestamptz[])
		      AS u (lesson_id, learner_id, percentage, completed_at)
		 ON CONFLICT (lesson_id, learner_id) DO NOTHING`,
		lessonIDs, learners, percentages, completedAts,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`DELETE FROM lesson_bookmarks AS b
		 USING UNNEST($1::uuid[], $2::text[]) AS u (lesson_id, learner_id)
		 WHERE b.lesson_id = u.lesson_id AND b.learner_id = u.learner_id`,
		lessonIDs, learners,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
