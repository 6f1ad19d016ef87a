package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
}

func migrateAction(run func(ctx context.Context, cfg *config.Config) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return run(cmd.Context(), cfg)
	}
}

func withSQL(ctx context.Context, cfg *config.Config, fn func(ctx context.Context, table string, db *sql.DB) error) error {
	db, err := database.OpenSQL(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, cfg.Database.MigrationsTable, db)
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: migrateAction(func(ctx context.Context, cfg *config.Config) error {
		return withSQL(ctx, cfg, func(ctx context.Context, table string, db *sql.DB) error {
			return database.MigrateUp(ctx, db, table)
		})
	}),
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: migrateAction(func(ctx context.Context, cfg *config.Config) error {
		return withSQL(ctx, cfg, func(ctx context.Context, table string, db *sql.DB) error {
			return database.MigrateDown(ctx, db, table)
		})
	}),
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: migrateAction(func(ctx context.Context, cfg *config.Config) error {
		return withSQL(ctx, cfg, func(ctx context.Context, table string, db *sql.DB) error {
			return database.MigrateStatus(ctx, db, table)
		})
	}),
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
}
