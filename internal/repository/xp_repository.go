package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/lessonflow/internal/model"
)

// XPRepository handles XP award records.
type XPRepository struct {
	pool *pgxpool.Pool
}

// NewXPRepository creates a new XPRepository.
func NewXPRepository(pool *pgxpool.Pool) *XPRepository {
	return &XPRepository{pool: pool}
}

// Insert records a single award.
func (r *XPRepository) Insert(ctx context.Context, a *model.XPAward) error {
	lessonID, err := uuid.Parse(a.LessonID)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO xp_awards (learner_id, lesson_id, amount, reason, awarded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (learner_id, lesson_id, reason) DO NOTHING`,
		a.LearnerID, lessonID, a.Amount, a.Reason, a.AwardedAt,
	)
	return err
}

// InsertBatch bulk-loads awards with COPY. Any duplicate fails the batch.
func (r *XPRepository) InsertBatch(ctx context.Context, awards []model.XPAward) error {
	rows := make([][]interface{}, 0, len(awards))
	for _, a := range awards {
		lessonID, err := uuid.Parse(a.LessonID)
		if err != nil {
			return err
		}
		rows = append(rows, []interface{}{a.LearnerID, lessonID, a.Amount, a.Reason, a.AwardedAt})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"xp_awards"},
		[]string{"learner_id", "lesson_id", "amount", "reason", "awarded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// TotalForLearner sums all XP a learner has earned.
func (r *XPRepository) TotalForLearner(ctx context.Context, learnerID string) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM xp_awards WHERE learner_id = $1`, learnerID,
	).Scan(&total)
	return total, err
}
