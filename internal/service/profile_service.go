package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"github.com/notes-bin/promptgallery/internal/form"
	"github.com/notes-bin/promptgallery/internal/model"
	"github.com/notes-bin/promptgallery/internal/repository"
	"github.com/notes-bin/promptgallery/internal/storage"
)

const ProfilePictureSize = 256

var allowedPictureTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

type ProfileView struct {
	User       *model.User
	Profile    *model.Profile
	ImageCount int
}

type ProfileService interface {
	Get(ctx context.Context, userID uuid.UUID) (*ProfileView, error)
	// Update stores bio and, when picture is non-nil, replaces the profile picture.
	Update(ctx context.Context, userID uuid.UUID, bio string, picture io.Reader) (*model.Profile, error)
	OpenPicture(ctx context.Context, userID uuid.UUID) (io.ReadCloser, error)
}

type profileService struct {
	users         repository.UserRepository
	profiles      repository.ProfileRepository
	images        repository.ImageRepository
	blobs         storage.BlobStore
	maxUploadSize int64
}

func NewProfileService(repos repository.Repositories, blobs storage.BlobStore, maxUploadSize int64) ProfileService {
	return &profileService{
		users:         repos.Users,
		profiles:      repos.Profiles,
		images:        repos.Images,
		blobs:         blobs,
		maxUploadSize: maxUploadSize,
	}
}

func (s *profileService) Get(ctx context.Context, userID uuid.UUID) (*ProfileView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	count, err := s.images.CountByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count images: %w", err)
	}
	return &ProfileView{User: user, Profile: profile, ImageCount: count}, nil
}

func (s *profileService) Update(ctx context.Context, userID uuid.UUID, bio string, picture io.Reader) (*model.Profile, error) {
	edit, err := form.ValidateProfile(bio)
	if err != nil {
		return nil, err
	}

	var newRef string
	if picture != nil {
		data, err := s.processPicture(picture)
		if err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%s_%s.png", userID, uuid.NewString())
		newRef, err = s.blobs.Save(ctx, storage.BucketProfilePictures, name, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("save profile picture: %w", err)
		}
	}

	current, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		s.discard(ctx, newRef)
		return nil, fmt.Errorf("get profile: %w", err)
	}
	oldRef := current.ProfilePicture
	current.Bio = edit.Bio
	if newRef != "" {
		current.ProfilePicture = &newRef
	}

	saved, err := s.profiles.Save(ctx, current)
	if err != nil {
		s.discard(ctx, newRef)
		return nil, fmt.Errorf("save profile: %w", err)
	}
	if newRef != "" && oldRef != nil {
		s.discard(ctx, *oldRef)
	}
	return saved, nil
}

func (s *profileService) discard(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := s.blobs.Delete(context.WithoutCancel(ctx), ref); err != nil {
		slog.Error("Failed to remove profile picture", "ref", ref, "error", err)
	}
}

// processPicture checks size and type, then center-crops to a square PNG.
func (s *profileService) processPicture(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxUploadSize {
		return nil, form.NewValidationError("profile_picture",
			fmt.Sprintf("File too large. Maximum size is %d bytes.", s.maxUploadSize))
	}
	if !allowedPictureTypes[http.DetectContentType(data)] {
		return nil, form.NewValidationError("profile_picture",
			"Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, form.NewValidationError("profile_picture",
			"Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}
	thumb := imaging.Fill(src, ProfilePictureSize, ProfilePictureSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode profile picture: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *profileService) OpenPicture(ctx context.Context, userID uuid.UUID) (io.ReadCloser, error) {
	profile, err := s.profiles.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.ProfilePicture == nil {
		return nil, repository.ErrNotFound
	}
	rc, err := s.blobs.Open(ctx, *profile.ProfilePicture)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, repository.ErrNotFound
	}
	return rc, err
}
