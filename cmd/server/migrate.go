package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/propertyline/triage/internal/config"
	"github.com/propertyline/triage/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  runMigrateUp,
}

var seedDemo bool

func init() {
	migrateUpCmd.Flags().BoolVar(&seedDemo, "seed-demo", false, "load demo technicians and properties after migrating")
	migrateCmd.AddCommand(migrateUpCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if seedDemo {
		if err := store.SeedDemo(ctx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	logger.Info().Bool("seeded", seedDemo).Msg("migrate up: ok")
	return nil
}
