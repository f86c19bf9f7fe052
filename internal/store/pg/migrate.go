package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"qazna.org/authservice/internal/store/pg/migrations"
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func setupGoose() error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect(driverName); err != nil {
		return fmt.Errorf("pg: goose dialect: %w", err)
	}
	return nil
}

// Migrate applies every embedded migration.
func Migrate(ctx context.Context, db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	return goose.DownContext(ctx, db, ".")
}

// MigrationStatus logs the state of each migration through goose's logger.
func MigrationStatus(ctx context.Context, db *sql.DB) error {
	if err := setupGoose(); err != nil {
		return err
	}
	return goose.StatusContext(ctx, db, ".")
}
