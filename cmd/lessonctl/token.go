package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stemsi/lessonflow/internal/service"
)

var tokenCmd = &cobra.Command{
	Use:   "token <learner>",
	Short: "Issue a learner token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tier := service.TierFree
		if premium, _ := cmd.Flags().GetBool("premium"); premium {
			tier = service.TierPremium
		}
		token, err := service.NewAuthService(cfg).IssueToken(args[0], tier)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Bool("premium", false, "Issue a premium-tier token")
}
