package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateUserProfilesTable, downCreateUserProfilesTable)
}

func upCreateUserProfilesTable(ctx context.Context, tx *sql.Tx) error {
	query := `
	CREATE TABLE user_profiles (
	  user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	  bio TEXT NOT NULL DEFAULT '' CHECK (char_length(bio) <= 500),
	  profile_picture TEXT,
	  updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);
	`
	_, err := tx.ExecContext(ctx, query)
	return err
}

func downCreateUserProfilesTable(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS user_profiles;`)
	return err
}
