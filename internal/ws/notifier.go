package ws

import (
	"context"
	"log"

	"github.com/google/uuid"

	"pairchat/internal/models"
	"pairchat/internal/observability"
)

const chatEventsPrefix = "chat_events."

// Notifier pushes committed chat changes to open websockets and the event bus.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) ChatCreated(ctx context.Context, chat models.Chat) {
	publishChatEvent(ctx, "chat_created", chat)
}

func (n *Notifier) MessageCreated(ctx context.Context, msg models.Message) {
	if n.hub != nil {
		n.hub.BroadcastChatMessage(msg.ChatID, msg)
	}
	publishChatEvent(ctx, "message_created", msg)
}

func (n *Notifier) MessagesRead(ctx context.Context, chatID uuid.UUID, readerID uuid.UUID, count int64) {
	if n.hub != nil {
		n.hub.BroadcastRead(chatID, readerID, count)
	}
	publishChatEvent(ctx, "messages_read", map[string]any{
		"chat_id":   chatID,
		"reader_id": readerID,
		"count":     count,
	})
}

func publishChatEvent(ctx context.Context, name string, payload any) {
	err := observability.PublishEvent(ctx, chatEventsPrefix+name, observability.EventEnvelope{
		EventType: "chat_events",
		EventName: name,
		Payload:   payload,
	}, observability.HeadersFromContext(ctx))
	if err != nil {
		log.Printf("chat event publish failed event=%s err=%v", name, err)
	}
}
