package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/config"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// OpenSQL opens a database/sql handle over lib/pq for migrations.
func OpenSQL(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return db, nil
}

func setupGoose(table string) error {
	goose.SetBaseFS(migrations)
	if table != "" {
		goose.SetTableName(table)
	}
	return goose.SetDialect("postgres")
}

// MigrateUp applies every pending migration.
func MigrateUp(ctx context.Context, db *sql.DB, table string) error {
	if err := setupGoose(table); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("migrate up failed: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, db *sql.DB, table string) error {
	if err := setupGoose(table); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, db, migrationsDir); err != nil {
		return fmt.Errorf("migrate down failed: %w", err)
	}
	return nil
}

// MigrateStatus prints applied and pending migrations through goose's logger.
func MigrateStatus(ctx context.Context, db *sql.DB, table string) error {
	if err := setupGoose(table); err != nil {
		return err
	}
	return goose.StatusContext(ctx, db, migrationsDir)
}
