package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"pairchat/internal/apperr"
)

// Chat represents a private chat between exactly two users.
// User1ID always sorts before User2ID so that a pair maps to one row.
type Chat struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	User1ID        uuid.UUID     `db:"user1_id" json:"user1_id"`
	User2ID        uuid.UUID     `db:"user2_id" json:"user2_id"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	LastActivityAt time.Time     `db:"last_activity_at" json:"last_activity_at"`
	LastMessageID  uuid.NullUUID `db:"last_message_id" json:"-"`
}

// OrderedPair returns a and b with the lower id first.
func OrderedPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

// HasParticipant reports whether userID is one of the two participants.
func (c Chat) HasParticipant(userID uuid.UUID) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// HasMessages reports whether at least one message was appended.
func (c Chat) HasMessages() bool {
	return c.LastMessageID.Valid
}

// OtherParticipant returns the participant that is not userID.
func (c Chat) OtherParticipant(userID uuid.UUID) (uuid.UUID, error) {
	switch userID {
	case c.User1ID:
		return c.User2ID, nil
	case c.User2ID:
		return c.User1ID, nil
	default:
		return uuid.Nil, apperr.NotParticipant("user is not a participant of this chat")
	}
}

// ChatSummary is one row of a user's chat list.
type ChatSummary struct {
	Chat        Chat       `json:"chat"`
	Other       PublicUser `json:"other_participant"`
	LastMessage *Message   `json:"last_message,omitempty"`
	UnreadCount int        `json:"unread_count"`
}
