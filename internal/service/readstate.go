package service

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"pairchat/internal/models"
	"pairchat/internal/observability"
	"pairchat/internal/repositories"
)

// ReadTracker flips read flags and counts unread messages. Flags only ever
// go from unread to read.
type ReadTracker struct {
	messages repositories.MessageRepository
	notifier Notifier
}

func NewReadTracker(messages repositories.MessageRepository, notifier Notifier) *ReadTracker {
	return &ReadTracker{messages: messages, notifier: notifierOrNop(notifier)}
}

// MarkReadOnAccess marks every unread message of chat not sent by userID as
// read in one statement and returns how many changed.
func (t *ReadTracker) MarkReadOnAccess(ctx context.Context, chat models.Chat, userID uuid.UUID) (count int64, err error) {
	ctx, span := startSpan(ctx, "reads.mark_read", attribute.String("chat.id", chat.ID.String()))
	defer func() { endSpan(span, err) }()

	if _, err := chat.OtherParticipant(userID); err != nil {
		return 0, err
	}
	count, err = t.messages.MarkRead(ctx, chat.ID, userID)
	if err != nil {
		return 0, storageError("mark read", err)
	}
	t.recordRead(ctx, chat.ID, userID, count)
	return count, nil
}

// UnreadCount counts the messages of chat that userID has not read.
func (t *ReadTracker) UnreadCount(ctx context.Context, chat models.Chat, userID uuid.UUID) (int, error) {
	if _, err := chat.OtherParticipant(userID); err != nil {
		return 0, err
	}
	count, err := t.messages.UnreadCount(ctx, chat.ID, userID)
	if err != nil {
		return 0, storageError("unread count", err)
	}
	return count, nil
}

func (t *ReadTracker) recordRead(ctx context.Context, chatID, readerID uuid.UUID, count int64) {
	if count == 0 {
		return
	}
	observability.AddMessagesMarkedRead(count)
	t.notifier.MessagesRead(ctx, chatID, readerID, count)
}
