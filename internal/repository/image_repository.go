package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/notes-bin/promptgallery/internal/model"
)

const imageColumns = `id, user_id, prompt, image_ref, is_public, seq, created_at`

type postgresImageRepository struct {
	db *sqlx.DB
}

func NewPostgresImageRepository(db *sqlx.DB) ImageRepository {
	return &postgresImageRepository{db: db}
}

// Create inserts the record; seq and created_at are assigned by the database.
func (r *postgresImageRepository) Create(ctx context.Context, img *model.Image) (*model.Image, error) {
	created := *img
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	query := `
		INSERT INTO generated_images (id, user_id, prompt, image_ref, is_public)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq, created_at
	`
	err := r.db.QueryRowxContext(ctx, query, created.ID, created.UserID, created.Prompt, created.ImageRef, created.IsPublic).
		Scan(&created.Seq, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert image: %w", err)
	}
	return &created, nil
}

func (r *postgresImageRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Image, error) {
	var img model.Image
	query := `SELECT ` + imageColumns + ` FROM generated_images WHERE id = $1`
	if err := r.db.GetContext(ctx, &img, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &img, nil
}

func (r *postgresImageRepository) ListPublic(ctx context.Context, limit int) ([]*model.Image, error) {
	images := []*model.Image{}
	query := `
		SELECT ` + imageColumns + `
		FROM generated_images
		WHERE is_public
		ORDER BY created_at DESC, seq DESC
		LIMIT $1
	`
	if err := r.db.SelectContext(ctx, &images, query, limit); err != nil {
		return nil, fmt.Errorf("list public images: %w", err)
	}
	return images, nil
}

func (r *postgresImageRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*model.Image, error) {
	images := []*model.Image{}
	query := `
		SELECT ` + imageColumns + `
		FROM generated_images
		WHERE user_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &images, query, ownerID, limit); err != nil {
		return nil, fmt.Errorf("list owner images: %w", err)
	}
	return images, nil
}

func (r *postgresImageRepository) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM generated_images WHERE user_id = $1`, ownerID)
	return count, err
}
