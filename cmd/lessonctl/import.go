package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stemsi/lessonflow/internal/engine"
	"github.com/stemsi/lessonflow/internal/model"
	"github.com/stemsi/lessonflow/internal/repository"
	"github.com/stemsi/lessonflow/internal/service"
)

var importCmd = &cobra.Command{
	Use:   "import <file.json>",
	Short: "Store a lesson document and refresh its cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		doc, err := engine.ParseDocument(raw)
		if err != nil {
			return err
		}
		// Reject documents the player could never open.
		if _, err := engine.Assemble(doc, engine.AssembleOptions{Premium: true}); err != nil {
			return err
		}

		id := uuid.New()
		if s, _ := cmd.Flags().GetString("id"); s != "" {
			if id, err = uuid.Parse(s); err != nil {
				return fmt.Errorf("invalid lesson id: %w", err)
			}
		}

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

		lesson := &model.Lesson{ID: id, Title: strings.TrimSpace(doc.Title), Document: raw}
		if doc.AudioURL != "" {
			lesson.AudioURL = &doc.AudioURL
		}
		repo := repository.NewLessonRepository(pool)
		if err := repo.Upsert(ctx, lesson); err != nil {
			return fmt.Errorf("store lesson: %w", err)
		}

		lessons := service.NewLessonService(repo, rdb, cfg.LessonCacheTTL, log)
		if _, err := lessons.Warm(ctx, lesson); err != nil {
			log.Warn().Err(err).Msg("Cache refresh failed, dropping stale entry")
			if err := lessons.Invalidate(ctx, id); err != nil {
				return fmt.Errorf("invalidate cache: %w", err)
			}
		}

		log.Info().Str("lesson_id", id.String()).Str("title", lesson.Title).Msg("Lesson imported")
		fmt.Fprintln(cmd.OutOrStdout(), id.String())
		return nil
	},
}

func init() {
	importCmd.Flags().String("id", "", "Lesson id (generated when empty)")
}
