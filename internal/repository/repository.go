package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/notes-bin/promptgallery/internal/model"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateUsername = errors.New("username already exists")
)

type UserRepository interface {
	// CreateWithProfile stores the user and an empty profile in one transaction.
	CreateWithProfile(ctx context.Context, user *model.User) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type ProfileRepository interface {
	// GetOrCreate is a single atomic upsert; concurrent first access yields one row.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	Save(ctx context.Context, profile *model.Profile) (*model.Profile, error)
}

type ImageRepository interface {
	Create(ctx context.Context, img *model.Image) (*model.Image, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Image, error)
	// ListPublic and ListByOwner return the newest limit rows, newest first.
	ListPublic(ctx context.Context, limit int) ([]*model.Image, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*model.Image, error)
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)
}

type Repositories struct {
	Users    UserRepository
	Profiles ProfileRepository
	Images   ImageRepository
}
