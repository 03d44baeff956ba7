package service

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"pairchat/internal/models"
	"pairchat/internal/repositories"
)

// Projector builds a user's chat list. It never changes read state.
type Projector struct {
	chats repositories.ChatRepository
}

func NewProjector(chats repositories.ChatRepository) *Projector {
	return &Projector{chats: chats}
}

// ProjectChatList returns every chat of userID with the other participant,
// the last message and the unread count, in chat list order.
func (p *Projector) ProjectChatList(ctx context.Context, userID uuid.UUID) (list []models.ChatSummary, err error) {
	ctx, span := startSpan(ctx, "projector.chat_list", attribute.String("user.id", userID.String()))
	defer func() {
		span.SetAttributes(attribute.Int("chats", len(list)))
		endSpan(span, err)
	}()

	list, err = p.chats.ListChatSummaries(ctx, userID)
	if err != nil {
		return nil, storageError("project chat list", err)
	}
	return list, nil
}
