package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered chat identity.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	AvatarRef    *string   `db:"avatar_ref" json:"avatar,omitempty"`
	Bio          string    `db:"bio" json:"bio"`
	LastSeen     time.Time `db:"last_seen" json:"last_seen"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PublicUser is the view of a user exposed to other participants.
type PublicUser struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarRef *string   `json:"avatar,omitempty"`
	Bio       string    `json:"bio"`
	LastSeen  time.Time `json:"last_seen"`
}

// Public strips private fields.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		AvatarRef: u.AvatarRef,
		Bio:       u.Bio,
		LastSeen:  u.LastSeen,
	}
}
