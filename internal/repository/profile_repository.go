package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/notes-bin/promptgallery/internal/model"
)

type postgresProfileRepository struct {
	db *sqlx.DB
}

func NewPostgresProfileRepository(db *sqlx.DB) ProfileRepository {
	return &postgresProfileRepository{db: db}
}

// The no-op DO UPDATE makes RETURNING yield the existing row as well.
func (r *postgresProfileRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	var profile model.Profile
	query := `
		INSERT INTO user_profiles (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, bio, profile_picture, updated_at
	`
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *postgresProfileRepository) Save(ctx context.Context, profile *model.Profile) (*model.Profile, error) {
	var saved model.Profile
	query := `
		INSERT INTO user_profiles (user_id, bio, profile_picture, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET bio = EXCLUDED.bio, profile_picture = EXCLUDED.profile_picture, updated_at = now()
		RETURNING user_id, bio, profile_picture, updated_at
	`
	if err := r.db.GetContext(ctx, &saved, query, profile.UserID, profile.Bio, profile.ProfilePicture); err != nil {
		return nil, err
	}
	return &saved, nil
}
