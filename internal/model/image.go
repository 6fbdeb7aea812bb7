package model

import (
	"time"

	"github.com/google/uuid"
)

type Image struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	UserID    *uuid.UUID `db:"user_id" json:"user_id,omitempty"` // nil for anonymous prompts
	Prompt    string     `db:"prompt" json:"prompt"`
	ImageRef  string     `db:"image_ref" json:"image_ref"` // blob reference, "<bucket>/<name>"
	IsPublic  bool       `db:"is_public" json:"is_public"`
	Seq       int64      `db:"seq" json:"-"` // store-assigned, breaks created_at ties
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// OwnedBy reports whether the image belongs to userID.
func (i *Image) OwnedBy(userID uuid.UUID) bool {
	return i.UserID != nil && *i.UserID == userID
}

// VisibleTo reports whether viewer may see the image. A nil viewer is anonymous.
func (i *Image) VisibleTo(viewer *uuid.UUID) bool {
	if i.IsPublic {
		return true
	}
	return viewer != nil && i.OwnedBy(*viewer)
}

// NewerThan orders images by recency: created_at first, then seq.
func (i *Image) NewerThan(other *Image) bool {
	if !i.CreatedAt.Equal(other.CreatedAt) {
		return i.CreatedAt.After(other.CreatedAt)
	}
	return i.Seq > other.Seq
}
