package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/notes-bin/promptgallery/internal/auth"
	"github.com/notes-bin/promptgallery/internal/events"
	"github.com/notes-bin/promptgallery/internal/form"
	"github.com/notes-bin/promptgallery/internal/generator"
	"github.com/notes-bin/promptgallery/internal/model"
	"github.com/notes-bin/promptgallery/internal/repository"
	"github.com/notes-bin/promptgallery/internal/storage"
)

const (
	DefaultGalleryLimit = 50
	MaxGalleryLimit     = 200
	// Pages starting past MaxGalleryOffset are empty.
	MaxGalleryOffset = 10000
)

// ViewCounter tracks image views and serves the popular snapshot; *redis.Client implements it.
type ViewCounter interface {
	IncrementView(ctx context.Context, imageID uuid.UUID) error
	GetPopular(ctx context.Context) ([]*model.Image, error)
}

type ImageService interface {
	// Submit validates the prompt, generates the image and records it for owner.
	// A nil owner is an anonymous submission.
	Submit(ctx context.Context, owner *uuid.UUID, prompt string, isPublic bool) (*model.Image, error)
	// Gallery lists what viewer may see, newest first.
	Gallery(ctx context.Context, viewer *uuid.UUID, offset, limit int) ([]*model.Image, error)
	Popular(ctx context.Context) ([]*model.Image, error)
	// Open returns the image bytes if viewer may see it and counts the view.
	Open(ctx context.Context, id uuid.UUID, viewer *uuid.UUID) (*model.Image, io.ReadCloser, error)
}

type ImageServiceOptions struct {
	Images         repository.ImageRepository
	Generator      generator.Generator
	Blobs          storage.BlobStore
	Publisher      events.EventPublisher
	Views          ViewCounter
	AllowAnonymous bool
}

type imageService struct {
	images         repository.ImageRepository
	generator      generator.Generator
	blobs          storage.BlobStore
	publisher      events.EventPublisher
	views          ViewCounter
	allowAnonymous bool
}

func NewImageService(opts ImageServiceOptions) ImageService {
	if opts.Publisher == nil {
		opts.Publisher = events.NoopPublisher{}
	}
	return &imageService{
		images:         opts.Images,
		generator:      opts.Generator,
		blobs:          opts.Blobs,
		publisher:      opts.Publisher,
		views:          opts.Views,
		allowAnonymous: opts.AllowAnonymous,
	}
}

func (s *imageService) Submit(ctx context.Context, owner *uuid.UUID, prompt string, isPublic bool) (*model.Image, error) {
	if owner == nil && !s.allowAnonymous {
		return nil, auth.ErrNoSession
	}
	p, err := form.ValidatePrompt(prompt, isPublic)
	if err != nil {
		return nil, err
	}

	data, err := s.generator.Generate(ctx, p.Text)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	ref, err := s.blobs.Save(ctx, storage.BucketGenerated, fmt.Sprintf("generated_%s.png", id), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("save generated image: %w", err)
	}

	img, err := s.images.Create(ctx, &model.Image{
		ID:       id,
		UserID:   owner,
		Prompt:   p.Text,
		ImageRef: ref,
		IsPublic: p.IsPublic,
	})
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
			slog.Error("Failed to remove orphaned image", "ref", ref, "error", delErr)
		}
		return nil, fmt.Errorf("create image record: %w", err)
	}

	if err := s.publisher.PublishImageGenerated(ctx, img); err != nil {
		slog.Warn("Failed to publish image event", "image_id", img.ID, "error", err)
	}
	slog.Info("Image generated", "image_id", img.ID, "public", img.IsPublic)
	return img, nil
}

func (s *imageService) Gallery(ctx context.Context, viewer *uuid.UUID, offset, limit int) ([]*model.Image, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultGalleryLimit
	}
	if limit > MaxGalleryLimit {
		limit = MaxGalleryLimit
	}
	if offset > MaxGalleryOffset {
		return []*model.Image{}, nil
	}
	window := offset + limit

	public, err := s.images.ListPublic(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("list public images: %w", err)
	}
	if viewer == nil {
		return page(public, offset, limit), nil
	}
	own, err := s.images.ListByOwner(ctx, *viewer, window)
	if err != nil {
		return nil, fmt.Errorf("list own images: %w", err)
	}
	return page(mergeNewestFirst(public, own), offset, limit), nil
}

// mergeNewestFirst merges two newest-first lists, keeping one copy of
// records present in both.
func mergeNewestFirst(a, b []*model.Image) []*model.Image {
	out := make([]*model.Image, 0, len(a)+len(b))
	seen := make(map[uuid.UUID]struct{}, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		var next *model.Image
		if j >= len(b) || (i < len(a) && !b[j].NewerThan(a[i])) {
			next = a[i]
			i++
		} else {
			next = b[j]
			j++
		}
		if _, dup := seen[next.ID]; dup {
			continue
		}
		seen[next.ID] = struct{}{}
		out = append(out, next)
	}
	return out
}

func page(images []*model.Image, offset, limit int) []*model.Image {
	if offset >= len(images) {
		return []*model.Image{}
	}
	end := offset + limit
	if end > len(images) {
		end = len(images)
	}
	return images[offset:end]
}

func (s *imageService) Popular(ctx context.Context) ([]*model.Image, error) {
	if s.views == nil {
		return []*model.Image{}, nil
	}
	return s.views.GetPopular(ctx)
}

func (s *imageService) Open(ctx context.Context, id uuid.UUID, viewer *uuid.UUID) (*model.Image, io.ReadCloser, error) {
	img, err := s.images.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	// private images of other users look exactly like missing ones
	if !img.VisibleTo(viewer) {
		return nil, nil, repository.ErrNotFound
	}
	rc, err := s.blobs.Open(ctx, img.ImageRef)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", img.ImageRef, err)
	}
	if img.IsPublic && s.views != nil {
		if err := s.views.IncrementView(ctx, img.ID); err != nil {
			slog.Warn("Failed to count view", "image_id", img.ID, "error", err)
		}
	}
	return img, rc, nil
}
