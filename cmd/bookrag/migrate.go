package main

import (
	"fmt"

	"book-rag/internal/database"

	"github.com/spf13/cobra"
)

func migrateCMD(load loadFunc) *cobra.Command {
	var direction string
	var steps int

	var migrate = &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				direction = args[0]
			}
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("postgres not configured (database.url or DATABASE_URL)")
			}
			if err := database.Migrate(cfg.Database.URL, direction, steps); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("migrations applied", "direction", direction, "steps", steps)
			return nil
		},
	}
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	return migrate
}
