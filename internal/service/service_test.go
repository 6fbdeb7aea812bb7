package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/notes-bin/promptgallery/internal/model"
	"github.com/notes-bin/promptgallery/internal/repository"
	"github.com/notes-bin/promptgallery/internal/storage"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	data    []byte
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return nil, g.err
	}
	return g.data, nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type memBlobs struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	saveErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: map[string][]byte{}}
}

func (m *memBlobs) Save(_ context.Context, bucket, name string, r io.Reader) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := storage.Ref(bucket, name)
	m.blobs[ref] = data
	return ref, nil
}

func (m *memBlobs) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[ref]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBlobs) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, ref)
	return nil
}

func (m *memBlobs) refs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	refs := make([]string, 0, len(m.blobs))
	for ref := range m.blobs {
		refs = append(refs, ref)
	}
	return refs
}

type recordingPublisher struct {
	mu     sync.Mutex
	images []*model.Image
	err    error
}

func (p *recordingPublisher) PublishImageGenerated(_ context.Context, img *model.Image) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.images = append(p.images, img)
	return p.err
}

func (p *recordingPublisher) Close() {}

type fakeViews struct {
	mu      sync.Mutex
	counts  map[uuid.UUID]int
	popular []*model.Image
}

func (v *fakeViews) IncrementView(_ context.Context, id uuid.UUID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.counts == nil {
		v.counts = map[uuid.UUID]int{}
	}
	v.counts[id]++
	return nil
}

func (v *fakeViews) GetPopular(context.Context) ([]*model.Image, error) {
	return v.popular, nil
}

func (v *fakeViews) count(id uuid.UUID) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.counts[id]
}

// failingImages makes Create fail after delegating reads to the wrapped store.
type failingImages struct {
	repository.ImageRepository
}

var errInsert = errors.New("insert failed")

func (failingImages) Create(context.Context, *model.Image) (*model.Image, error) {
	return nil, errInsert
}

// countingImages counts list queries reaching the wrapped store.
type countingImages struct {
	repository.ImageRepository
	lists int
}

func (c *countingImages) ListPublic(ctx context.Context, limit int) ([]*model.Image, error) {
	c.lists++
	return c.ImageRepository.ListPublic(ctx, limit)
}

func (c *countingImages) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*model.Image, error) {
	c.lists++
	return c.ImageRepository.ListByOwner(ctx, ownerID, limit)
}

func newUser(repos repository.Repositories, username string) *model.User {
	user, err := repos.Users.CreateWithProfile(context.Background(), &model.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	})
	if err != nil {
		panic(err)
	}
	return user
}
