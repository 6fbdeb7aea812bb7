package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/notes-bin/promptgallery/internal/model"
)

const (
	viewsKey   = "image:views"
	popularKey = "gallery:popular"
)

var ErrSessionNotFound = errors.New("session not found")

type Client struct {
	*redis.Client
}

func NewClient(addr, password string, db, poolSize int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})
	_, err := client.Ping(context.Background()).Result()
	if err != nil {
		return nil, err
	}
	slog.Info("Connected to Redis")
	return &Client{client}, nil
}

func sessionKey(sid string) string {
	return fmt.Sprintf("session:%s", sid)
}

func (c *Client) SaveSession(ctx context.Context, sid string, userID uuid.UUID, ttl time.Duration) error {
	return c.Set(ctx, sessionKey(sid), userID.String(), ttl).Err()
}

func (c *Client) GetSession(ctx context.Context, sid string) (uuid.UUID, error) {
	val, err := c.Get(ctx, sessionKey(sid)).Result()
	if err == redis.Nil {
		return uuid.Nil, ErrSessionNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("corrupt session %s: %w", sid, err)
	}
	return id, nil
}

func (c *Client) DeleteSession(ctx context.Context, sid string) error {
	return c.Del(ctx, sessionKey(sid)).Err()
}

func (c *Client) IncrementView(ctx context.Context, imageID uuid.UUID) error {
	return c.ZIncrBy(ctx, viewsKey, 1, imageID.String()).Err()
}

// GetTopImages returns up to n image ids by descending view count.
func (c *Client) GetTopImages(ctx context.Context, n int) ([]uuid.UUID, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := c.ZRevRange(ctx, viewsKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			slog.Warn("Skipping malformed view counter member", "member", m)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ForgetViews drops counters for images that no longer qualify for the strip.
func (c *Client) ForgetViews(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id.String()
	}
	return c.ZRem(ctx, viewsKey, members...).Err()
}

type popularSnapshot struct {
	Images      []*model.Image `json:"images"`
	RefreshedAt time.Time      `json:"refreshed_at"`
}

func (c *Client) SavePopular(ctx context.Context, images []*model.Image) error {
	data, err := json.Marshal(popularSnapshot{Images: images, RefreshedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, popularKey)
		pipe.Set(ctx, popularKey, data, 0)
		return nil
	})
	return err
}

// GetPopular returns the last snapshot, or nothing if none was taken yet.
func (c *Client) GetPopular(ctx context.Context) ([]*model.Image, error) {
	data, err := c.Get(ctx, popularKey).Bytes()
	if err == redis.Nil {
		return []*model.Image{}, nil
	}
	if err != nil {
		return nil, err
	}
	var snap popularSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode popular snapshot: %w", err)
	}
	if snap.Images == nil {
		snap.Images = []*model.Image{}
	}
	return snap.Images, nil
}
