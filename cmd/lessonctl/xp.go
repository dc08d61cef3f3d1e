package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stemsi/lessonflow/internal/repository"
)

var xpCmd = &cobra.Command{
	Use:   "xp <learner>",
	Short: "Show a learner's total XP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := openPostgres(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		total, err := repository.NewXPRepository(pool).TotalForLearner(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d XP\n", args[0], total)
		return nil
	},
}
