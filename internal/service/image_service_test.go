package service

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notes-bin/promptgallery/internal/auth"
	"github.com/notes-bin/promptgallery/internal/form"
	"github.com/notes-bin/promptgallery/internal/generator"
	"github.com/notes-bin/promptgallery/internal/model"
	"github.com/notes-bin/promptgallery/internal/repository"
)

type imageFixture struct {
	svc   ImageService
	repos repository.Repositories
	gen   *fakeGenerator
	blobs *memBlobs
	pub   *recordingPublisher
	views *fakeViews
	alice *model.User
	bob   *model.User
}

func newImageFixture(t *testing.T, allowAnonymous bool) *imageFixture {
	t.Helper()
	f := &imageFixture{
		repos: repository.NewMemory(),
		gen:   &fakeGenerator{data: []byte("\x89PNG image")},
		blobs: newMemBlobs(),
		pub:   &recordingPublisher{},
		views: &fakeViews{},
	}
	f.alice = newUser(f.repos, "alice")
	f.bob = newUser(f.repos, "bob")
	f.svc = NewImageService(ImageServiceOptions{
		Images:         f.repos.Images,
		Generator:      f.gen,
		Blobs:          f.blobs,
		Publisher:      f.pub,
		Views:          f.views,
		AllowAnonymous: allowAnonymous,
	})
	return f
}

func (f *imageFixture) submit(t *testing.T, owner *model.User, prompt string, public bool) *model.Image {
	t.Helper()
	var ownerID *uuid.UUID
	if owner != nil {
		ownerID = &owner.ID
	}
	img, err := f.svc.Submit(context.Background(), ownerID, prompt, public)
	require.NoError(t, err)
	return img
}

func ids(images []*model.Image) []uuid.UUID {
	out := make([]uuid.UUID, len(images))
	for i, img := range images {
		out[i] = img.ID
	}
	return out
}

func TestSubmit_RedBalloon(t *testing.T) {
	f := newImageFixture(t, false)
	ctx := context.Background()

	img := f.submit(t, f.alice, "a red balloon", true)

	assert.Equal(t, []string{"a red balloon"}, f.gen.prompts)
	assert.True(t, img.OwnedBy(f.alice.ID))
	assert.True(t, img.IsPublic)
	assert.Equal(t, "generated_images/generated_"+img.ID.String()+".png", img.ImageRef)
	assert.Equal(t, []string{img.ImageRef}, f.blobs.refs())
	assert.False(t, img.CreatedAt.IsZero())

	gallery, err := f.svc.Gallery(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, gallery, 1)
	assert.Equal(t, "a red balloon", gallery[0].Prompt)

	require.Len(t, f.pub.images, 1)
	assert.Equal(t, img.ID, f.pub.images[0].ID)
}

func TestSubmit_GenerationFailure(t *testing.T) {
	f := newImageFixture(t, false)
	f.gen.err = &generator.Error{Provider: "openai", Message: "content policy violation"}

	_, err := f.svc.Submit(context.Background(), &f.alice.ID, "something forbidden", true)
	require.Error(t, err)
	assert.True(t, generator.IsGenerationError(err))
	assert.Equal(t, "API Error: content policy violation", err.Error())

	count, err := f.repos.Images.CountByOwner(context.Background(), f.alice.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, f.blobs.refs())
	assert.Empty(t, f.pub.images)
}

func TestSubmit_RejectsInvalidPrompt(t *testing.T) {
	f := newImageFixture(t, false)

	for _, prompt := range []string{"", "   ", strings.Repeat("x", form.MaxPromptLength+1)} {
		_, err := f.svc.Submit(context.Background(), &f.alice.ID, prompt, true)
		var vErr *form.ValidationError
		require.True(t, errors.As(err, &vErr), "prompt of %d chars", len(prompt))
	}
	assert.Zero(t, f.gen.calls())
}

func TestSubmit_Anonymous(t *testing.T) {
	f := newImageFixture(t, false)
	_, err := f.svc.Submit(context.Background(), nil, "a red balloon", true)
	assert.ErrorIs(t, err, auth.ErrNoSession)
	assert.Zero(t, f.gen.calls())

	f = newImageFixture(t, true)
	img := f.submit(t, nil, "a red balloon", true)
	assert.Nil(t, img.UserID)
}

func TestSubmit_InsertFailureRemovesBlob(t *testing.T) {
	f := newImageFixture(t, false)
	f.svc = NewImageService(ImageServiceOptions{
		Images:    failingImages{f.repos.Images},
		Generator: f.gen,
		Blobs:     f.blobs,
		Publisher: f.pub,
	})

	_, err := f.svc.Submit(context.Background(), &f.alice.ID, "a red balloon", true)
	assert.ErrorIs(t, err, errInsert)
	assert.Empty(t, f.blobs.refs())
	assert.Empty(t, f.pub.images)
}

func TestSubmit_PublishFailureIsIgnored(t *testing.T) {
	f := newImageFixture(t, false)
	f.pub.err = errors.New("nats down")

	img := f.submit(t, f.alice, "a red balloon", true)
	assert.NotNil(t, img)
}

func TestGallery_AnonymousViewer(t *testing.T) {
	f := newImageFixture(t, false)
	f.submit(t, f.alice, "alice private", false)
	bobPublic := f.submit(t, f.bob, "bob public", true)

	gallery, err := f.svc.Gallery(context.Background(), nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{bobPublic.ID}, ids(gallery))
}

func TestGallery_OwnerViewer(t *testing.T) {
	f := newImageFixture(t, false)
	alicePrivate := f.submit(t, f.alice, "alice private", false)
	bobPublic := f.submit(t, f.bob, "bob public", true)
	bobPrivate := f.submit(t, f.bob, "bob private", false)
	alicePublic := f.submit(t, f.alice, "alice public", true)

	gallery, err := f.svc.Gallery(context.Background(), &f.alice.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alicePublic.ID, bobPublic.ID, alicePrivate.ID}, ids(gallery))
	assert.NotContains(t, ids(gallery), bobPrivate.ID)

	gallery, err = f.svc.Gallery(context.Background(), &f.bob.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alicePublic.ID, bobPrivate.ID, bobPublic.ID}, ids(gallery))
}

func TestGallery_Properties(t *testing.T) {
	f := newImageFixture(t, false)
	users := []*model.User{f.alice, f.bob}
	for i := 0; i < 40; i++ {
		f.submit(t, users[i%2], "prompt", i%3 != 0)
	}
	stranger := uuid.New()

	for _, viewer := range []*uuid.UUID{nil, &f.alice.ID, &f.bob.ID, &stranger} {
		gallery, err := f.svc.Gallery(context.Background(), viewer, 0, MaxGalleryLimit)
		require.NoError(t, err)

		seen := map[uuid.UUID]bool{}
		for i, img := range gallery {
			assert.True(t, img.VisibleTo(viewer), "image %s leaked", img.ID)
			assert.False(t, seen[img.ID], "image %s listed twice", img.ID)
			seen[img.ID] = true
			if i > 0 {
				prev := gallery[i-1]
				assert.False(t, img.CreatedAt.After(prev.CreatedAt), "order broken at %d", i)
				assert.True(t, prev.NewerThan(img))
			}
		}

		expected := 0
		all, err := f.repos.Images.ListPublic(context.Background(), 1000)
		require.NoError(t, err)
		expected += len(all)
		if viewer != nil {
			own, err := f.repos.Images.ListByOwner(context.Background(), *viewer, 1000)
			require.NoError(t, err)
			for _, img := range own {
				if !img.IsPublic {
					expected++
				}
			}
		}
		assert.Len(t, gallery, expected)
	}
}

func TestGallery_Paging(t *testing.T) {
	f := newImageFixture(t, false)
	for i := 0; i < 12; i++ {
		f.submit(t, f.alice, "prompt", i%2 == 0)
		f.submit(t, f.bob, "prompt", true)
	}
	ctx := context.Background()

	full, err := f.svc.Gallery(ctx, &f.alice.ID, 0, MaxGalleryLimit)
	require.NoError(t, err)

	var paged []*model.Image
	for offset := 0; offset < len(full)+5; offset += 5 {
		window, err := f.svc.Gallery(ctx, &f.alice.ID, offset, 5)
		require.NoError(t, err)
		paged = append(paged, window...)
	}
	assert.Equal(t, ids(full), ids(paged))

	beyond, err := f.svc.Gallery(ctx, nil, 1000, 10)
	require.NoError(t, err)
	assert.Empty(t, beyond)
}

func TestGallery_LimitClamped(t *testing.T) {
	f := newImageFixture(t, false)
	for i := 0; i < DefaultGalleryLimit+1; i++ {
		f.submit(t, f.bob, "prompt", true)
	}
	gallery, err := f.svc.Gallery(context.Background(), nil, -3, 0)
	require.NoError(t, err)
	assert.Len(t, gallery, DefaultGalleryLimit)
}

func TestGallery_OffsetCapped(t *testing.T) {
	f := newImageFixture(t, false)
	f.submit(t, f.bob, "prompt", true)
	images := &countingImages{ImageRepository: f.repos.Images}
	svc := NewImageService(ImageServiceOptions{Images: images, Generator: f.gen, Blobs: f.blobs})
	ctx := context.Background()

	for _, offset := range []int{MaxGalleryOffset + 1, math.MaxInt} {
		gallery, err := svc.Gallery(ctx, &f.alice.ID, offset, MaxGalleryLimit)
		require.NoError(t, err)
		assert.Empty(t, gallery)
	}
	assert.Zero(t, images.lists)

	gallery, err := svc.Gallery(ctx, &f.alice.ID, MaxGalleryOffset, MaxGalleryLimit)
	require.NoError(t, err)
	assert.Empty(t, gallery)
	assert.Equal(t, 2, images.lists)
}

func TestMergeNewestFirst_Dedup(t *testing.T) {
	shared := &model.Image{ID: uuid.New(), Seq: 2}
	a := []*model.Image{shared, {ID: uuid.New(), Seq: 1}}
	b := []*model.Image{{ID: uuid.New(), Seq: 3}, shared}

	merged := mergeNewestFirst(a, b)
	require.Len(t, merged, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{merged[0].Seq, merged[1].Seq, merged[2].Seq})
}

func TestOpen_Visibility(t *testing.T) {
	f := newImageFixture(t, false)
	ctx := context.Background()
	private := f.submit(t, f.alice, "alice private", false)
	public := f.submit(t, f.alice, "alice public", true)

	_, _, err := f.svc.Open(ctx, private.ID, &f.bob.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, _, err = f.svc.Open(ctx, private.ID, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, _, err = f.svc.Open(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	img, rc, err := f.svc.Open(ctx, private.ID, &f.alice.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, f.gen.data, data)
	assert.Equal(t, private.ID, img.ID)
	assert.Zero(t, f.views.count(private.ID))

	_, rc, err = f.svc.Open(ctx, public.ID, nil)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, 1, f.views.count(public.ID))
}

func TestPopular(t *testing.T) {
	f := newImageFixture(t, false)
	f.views.popular = []*model.Image{{ID: uuid.New(), IsPublic: true}}

	popular, err := f.svc.Popular(context.Background())
	require.NoError(t, err)
	assert.Len(t, popular, 1)

	svc := NewImageService(ImageServiceOptions{Images: f.repos.Images})
	popular, err = svc.Popular(context.Background())
	require.NoError(t, err)
	assert.Empty(t, popular)
}
