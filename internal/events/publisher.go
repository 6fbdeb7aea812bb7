package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/notes-bin/promptgallery/internal/model"
)

const SubjectImageGenerated = "image.generated"

type EventPublisher interface {
	PublishImageGenerated(ctx context.Context, img *model.Image) error
	Close()
}

type ImageGeneratedEvent struct {
	EventType string     `json:"event_type"`
	ImageID   uuid.UUID  `json:"image_id"`
	UserID    *uuid.UUID `json:"user_id"`
	IsPublic  bool       `json:"is_public"`
	CreatedAt time.Time  `json:"created_at"`
}

func newImageGeneratedEvent(img *model.Image) ImageGeneratedEvent {
	return ImageGeneratedEvent{
		EventType: SubjectImageGenerated,
		ImageID:   img.ID,
		UserID:    img.UserID,
		IsPublic:  img.IsPublic,
		CreatedAt: img.CreatedAt,
	}
}

type NatsPublisher struct {
	conn *nats.Conn
}

func NewNatsPublisher(natsURL string) (EventPublisher, error) {
	nc, err := nats.Connect(natsURL, nats.Name("promptgallery"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	slog.Info("Connected to NATS", "url", nc.ConnectedUrl())
	return &NatsPublisher{conn: nc}, nil
}

func (p *NatsPublisher) PublishImageGenerated(_ context.Context, img *model.Image) error {
	eventJSON, err := json.Marshal(newImageGeneratedEvent(img))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(SubjectImageGenerated, eventJSON); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectImageGenerated, err)
	}
	slog.Debug("Published event", "subject", SubjectImageGenerated, "image_id", img.ID)
	return nil
}

func (p *NatsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		slog.Error("Failed to drain NATS connection", "error", err)
	}
}

// NoopPublisher is used when no nats_url is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishImageGenerated(context.Context, *model.Image) error { return nil }
func (NoopPublisher) Close()                                                    {}
