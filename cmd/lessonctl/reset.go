package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/repository"
)

var resetCmd = &cobra.Command{
	Use:   "reset <lesson_id> <learner>",
	Short: "Forget a learner's bookmark for a lesson",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		lessonID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid lesson id: %w", err)
		}
		learnerID := args[1]

		pool, err := openPostgres(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		rdb, err := openRedis(ctx)
		if err != nil {
			return err
		}
		defer rdb.Close()

		if err := repository.NewBookmarkRepository(pool).Delete(ctx, lessonID, learnerID); err != nil {
			return fmt.Errorf("delete bookmark: %w", err)
		}
		key := config.CacheKey.LearnerBookmarkKey(lessonID.String(), learnerID)
		if err := rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("delete live bookmark: %w", err)
		}

		log.Info().Str("lesson_id", lessonID.String()).Str("learner_id", learnerID).Msg("Bookmark reset")
		return nil
	},
}
