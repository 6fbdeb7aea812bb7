package model

import (
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	Bio            string    `db:"bio" json:"bio"`
	ProfilePicture *string   `db:"profile_picture" json:"profile_picture,omitempty"` // blob reference
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
