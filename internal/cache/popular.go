package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/notes-bin/promptgallery/internal/model"
	"github.com/notes-bin/promptgallery/internal/repository"
)

// PopularSize is the number of images in the popular strip.
const PopularSize = 10

// PopularStore is the view ranking plus its snapshot; *redis.Client implements it.
type PopularStore interface {
	GetTopImages(ctx context.Context, n int) ([]uuid.UUID, error)
	ForgetViews(ctx context.Context, ids ...uuid.UUID) error
	SavePopular(ctx context.Context, images []*model.Image) error
}

// RefreshPopular rebuilds the snapshot from the view ranking. Ranked ids whose
// record is gone or not public are dropped from the ranking.
func RefreshPopular(ctx context.Context, store PopularStore, images repository.ImageRepository) error {
	top, err := store.GetTopImages(ctx, PopularSize*2)
	if err != nil {
		return fmt.Errorf("read ranking: %w", err)
	}

	popular := make([]*model.Image, 0, PopularSize)
	var stale []uuid.UUID
	for _, id := range top {
		if len(popular) == PopularSize {
			break
		}
		img, err := images.FindByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !img.IsPublic) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return fmt.Errorf("load image %s: %w", id, err)
		}
		popular = append(popular, img)
	}

	if err := store.ForgetViews(ctx, stale...); err != nil {
		slog.Warn("Failed to drop stale view counters", "count", len(stale), "error", err)
	}
	if err := store.SavePopular(ctx, popular); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// StartPopularRefresh runs RefreshPopular on the cron spec until ctx is done.
func StartPopularRefresh(ctx context.Context, store PopularStore, images repository.ImageRepository, spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		if err := RefreshPopular(ctx, store, images); err != nil {
			slog.Error("Failed to refresh popular images", "error", err)
			return
		}
		slog.Debug("Refreshed popular images")
	})
	if err != nil {
		return fmt.Errorf("schedule popular refresh %q: %w", spec, err)
	}

	c.Start()
	slog.Info("Popular refresh scheduled", "spec", spec)
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		slog.Info("Popular refresh stopped")
	}()
	return nil
}
