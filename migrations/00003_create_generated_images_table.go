package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateGeneratedImagesTable, downCreateGeneratedImagesTable)
}

func upCreateGeneratedImagesTable(ctx context.Context, tx *sql.Tx) error {
	query := `
	CREATE TABLE generated_images (
	  id UUID PRIMARY KEY,
	  seq BIGSERIAL UNIQUE NOT NULL,
	  user_id UUID REFERENCES users(id) ON DELETE CASCADE,
	  prompt TEXT NOT NULL CHECK (char_length(prompt) <= 1000),
	  image_ref TEXT NOT NULL,
	  is_public BOOLEAN NOT NULL DEFAULT TRUE,
	  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT clock_timestamp()
	);

	CREATE INDEX generated_images_public_recent_idx
	  ON generated_images (created_at DESC, seq DESC) WHERE is_public;
	CREATE INDEX generated_images_owner_recent_idx
	  ON generated_images (user_id, created_at DESC, seq DESC);
	`
	_, err := tx.ExecContext(ctx, query)
	return err
}

func downCreateGeneratedImagesTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS generated_images;`)
	return err
}
