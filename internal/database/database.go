package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"

	"korner-support-service/internal/config"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const connectTimeout = 30 * time.Second

// Connect opens the pool and waits for the server with exponential backoff.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectTimeout

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	notify := func(err error, wait time.Duration) {
		logrus.Warnf("[db][connect] ping failed, retry in %s: %v", wait.Round(time.Millisecond), err)
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(bo, ctx), notify); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func MigrationSource() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations",
	}
}

// Migrate applies (Up) or rolls back (Down) the embedded migrations and
// returns how many were executed.
func Migrate(db *sql.DB, direction migrate.MigrationDirection) (int, error) {
	n, err := migrate.Exec(db, "postgres", MigrationSource(), direction)
	if err != nil {
		return n, fmt.Errorf("migrate: %w", err)
	}
	return n, nil
}
