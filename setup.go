package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/notes-bin/promptgallery/internal/config"
	"github.com/notes-bin/promptgallery/internal/events"
	"github.com/notes-bin/promptgallery/internal/repository"
	"github.com/notes-bin/promptgallery/internal/storage"
)

// openRepositories connects to Postgres and applies pending migrations.
// Without a database_url the in-memory store is used and db is nil.
func openRepositories(cfg *config.Config) (repository.Repositories, *sqlx.DB, error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("No database_url configured, using in-memory store")
		return repository.NewMemory(), nil, nil
	}
	db, err := repository.Connect(cfg.DatabaseURL)
	if err != nil {
		return repository.Repositories{}, nil, err
	}
	if err := repository.Migrate(db, cfg.MigrationsDir); err != nil {
		db.Close()
		return repository.Repositories{}, nil, err
	}
	return repository.NewPostgres(db), db, nil
}

func migrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required to run migrations")
	}
	db, err := repository.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return repository.Migrate(db, cfg.MigrationsDir)
}

func openStorage(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.Storage.Driver == config.StorageS3 {
		s3cfg := cfg.Storage.S3
		return storage.NewS3Storage(ctx, storage.S3Options{
			Endpoint:     s3cfg.Endpoint,
			Region:       s3cfg.Region,
			Bucket:       s3cfg.Bucket,
			AccessKey:    s3cfg.AccessKey,
			SecretKey:    s3cfg.SecretKey,
			UsePathStyle: s3cfg.UsePathStyle,
		})
	}
	return storage.NewDiskStorage(cfg.Storage.UploadDir)
}

// openPublisher falls back to a no-op publisher when NATS is not configured or unreachable.
func openPublisher(cfg *config.Config) events.EventPublisher {
	if cfg.NatsURL == "" {
		return events.NoopPublisher{}
	}
	pub, err := events.NewNatsPublisher(cfg.NatsURL)
	if err != nil {
		slog.Warn("Failed to connect to NATS, events disabled", "error", err)
		return events.NoopPublisher{}
	}
	return pub
}
