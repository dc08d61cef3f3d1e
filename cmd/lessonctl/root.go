package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/lessonflow/internal/config"
	"github.com/stemsi/lessonflow/internal/database"
	"github.com/stemsi/lessonflow/internal/logger"
)

var (
	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "lessonctl",
	Short:        "Operate lessons and learner progress",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		log = logger.Component(logger.Setup(cfg.LogLevel, cfg.LogFormat), "lessonctl")
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(xpCmd)
	rootCmd.AddCommand(resetCmd)
}

func openPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	return database.NewPostgresPool(ctx, cfg, log)
}

func openRedis(ctx context.Context) (*redis.Client, error) {
	return database.NewRedisClient(ctx, cfg, log)
}
