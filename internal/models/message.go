package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentType enumerates the kinds of message payload.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentAudio ContentType = "audio"
)

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	switch t {
	case ContentText, ContentImage, ContentAudio:
		return true
	}
	return false
}

// IsMedia reports whether the payload is a media reference.
func (t ContentType) IsMedia() bool {
	return t == ContentImage || t == ContentAudio
}

// Message represents a chat message. Only IsRead ever changes after creation.
type Message struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	ChatID      uuid.UUID   `db:"chat_id" json:"chat_id"`
	SenderID    uuid.UUID   `db:"sender_id" json:"sender_id"`
	ContentType ContentType `db:"content_type" json:"content_type"`
	TextContent *string     `db:"text_content" json:"text_content,omitempty"`
	MediaRef    *string     `db:"media_ref" json:"media_content,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"timestamp"`
	IsRead      bool        `db:"is_read" json:"is_read"`
}

// ChatEvent is broadcasted through websockets.
type ChatEvent struct {
	Type     string     `json:"type"`
	Message  *Message   `json:"message,omitempty"`
	ReaderID *uuid.UUID `json:"reader_id,omitempty"`
	Count    int64      `json:"count,omitempty"`
}
