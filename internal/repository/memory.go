package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notes-bin/promptgallery/internal/model"
)

// memoryDB backs the in-memory repositories used when no database_url is set.
// Everything is lost on restart.
type memoryDB struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*model.User
	profiles map[uuid.UUID]*model.Profile
	images   []*model.Image
	seq      int64
	now      func() time.Time
}

func NewMemory() Repositories {
	db := &memoryDB{
		users:    map[uuid.UUID]*model.User{},
		profiles: map[uuid.UUID]*model.Profile{},
		now:      time.Now,
	}
	return Repositories{
		Users:    &memoryUserRepository{db},
		Profiles: &memoryProfileRepository{db},
		Images:   &memoryImageRepository{db},
	}
}

type memoryUserRepository struct{ db *memoryDB }

func (r *memoryUserRepository) CreateWithProfile(_ context.Context, user *model.User) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, u := range r.db.users {
		if strings.EqualFold(u.Username, user.Username) {
			return nil, ErrDuplicateUsername
		}
	}
	created := *user
	created.ID = uuid.New()
	created.CreatedAt = r.db.now()
	r.db.users[created.ID] = &created
	r.db.profiles[created.ID] = &model.Profile{UserID: created.ID, UpdatedAt: created.CreatedAt}

	out := created
	return &out, nil
}

func (r *memoryUserRepository) FindByUsername(_ context.Context, username string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, u := range r.db.users {
		if strings.EqualFold(u.Username, username) {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryUserRepository) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	u, ok := r.db.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

type memoryProfileRepository struct{ db *memoryDB }

func (r *memoryProfileRepository) GetOrCreate(_ context.Context, userID uuid.UUID) (*model.Profile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.profiles[userID]
	if !ok {
		p = &model.Profile{UserID: userID, UpdatedAt: r.db.now()}
		r.db.profiles[userID] = p
	}
	return copyProfile(p), nil
}

func (r *memoryProfileRepository) Save(_ context.Context, profile *model.Profile) (*model.Profile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	saved := copyProfile(profile)
	saved.UpdatedAt = r.db.now()
	r.db.profiles[saved.UserID] = saved
	return copyProfile(saved), nil
}

func copyProfile(p *model.Profile) *model.Profile {
	out := *p
	if p.ProfilePicture != nil {
		pic := *p.ProfilePicture
		out.ProfilePicture = &pic
	}
	return &out
}

type memoryImageRepository struct{ db *memoryDB }

func (r *memoryImageRepository) Create(_ context.Context, img *model.Image) (*model.Image, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	created := copyImage(img)
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	r.db.seq++
	created.Seq = r.db.seq
	created.CreatedAt = r.db.now()
	r.db.images = append(r.db.images, created)
	return copyImage(created), nil
}

func (r *memoryImageRepository) FindByID(_ context.Context, id uuid.UUID) (*model.Image, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, img := range r.db.images {
		if img.ID == id {
			return copyImage(img), nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryImageRepository) ListPublic(_ context.Context, limit int) ([]*model.Image, error) {
	return r.list(limit, func(img *model.Image) bool { return img.IsPublic }), nil
}

func (r *memoryImageRepository) ListByOwner(_ context.Context, ownerID uuid.UUID, limit int) ([]*model.Image, error) {
	return r.list(limit, func(img *model.Image) bool { return img.OwnedBy(ownerID) }), nil
}

func (r *memoryImageRepository) CountByOwner(_ context.Context, ownerID uuid.UUID) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	count := 0
	for _, img := range r.db.images {
		if img.OwnedBy(ownerID) {
			count++
		}
	}
	return count, nil
}

func (r *memoryImageRepository) list(limit int, keep func(*model.Image) bool) []*model.Image {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	images := []*model.Image{}
	for _, img := range r.db.images {
		if keep(img) {
			images = append(images, copyImage(img))
		}
	}
	sort.SliceStable(images, func(i, j int) bool { return images[i].NewerThan(images[j]) })
	if limit >= 0 && len(images) > limit {
		images = images[:limit]
	}
	return images
}

func copyImage(img *model.Image) *model.Image {
	out := *img
	if img.UserID != nil {
		owner := *img.UserID
		out.UserID = &owner
	}
	return &out
}
