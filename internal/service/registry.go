package service

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"pairchat/internal/apperr"
	"pairchat/internal/models"
	"pairchat/internal/observability"
	"pairchat/internal/repositories"
)

// maxCreateAttempts bounds how often a lost creation race is retried.
const maxCreateAttempts = 3

// Registry owns chat creation and lookup.
type Registry struct {
	chats    repositories.ChatRepository
	users    repositories.UserRepository
	notifier Notifier
	now      Clock
}

func NewRegistry(chats repositories.ChatRepository, users repositories.UserRepository, notifier Notifier) *Registry {
	return &Registry{chats: chats, users: users, notifier: notifierOrNop(notifier), now: UTCNow}
}

// FindOrCreateChat returns the chat between a and b, creating it on first
// use. created reports whether this call inserted it. Concurrent calls for
// the same pair all return the same chat: the storage layer rejects a second
// row for the pair and the loser re-reads.
func (r *Registry) FindOrCreateChat(ctx context.Context, a, b uuid.UUID) (chat models.Chat, created bool, err error) {
	ctx, span := startSpan(ctx, "registry.find_or_create_chat")
	defer func() {
		span.SetAttributes(attribute.Bool("chat.created", created))
		endSpan(span, err)
	}()

	if a == b {
		return models.Chat{}, false, apperr.Invalid("recipient_id", "cannot start a chat with yourself")
	}
	for _, id := range []uuid.UUID{a, b} {
		if _, err := r.users.GetUser(ctx, id); err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return models.Chat{}, false, apperr.NotFound("user not found")
			}
			return models.Chat{}, false, storageError("get user", err)
		}
	}

	user1, user2 := models.OrderedPair(a, b)
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		chat, err = r.chats.GetChatByPair(ctx, user1, user2)
		if err == nil {
			return chat, false, nil
		}
		if !errors.Is(err, repositories.ErrChatNotFound) {
			return models.Chat{}, false, storageError("get chat by pair", err)
		}

		now := r.now()
		chat = models.Chat{
			ID:             uuid.New(),
			User1ID:        user1,
			User2ID:        user2,
			CreatedAt:      now,
			LastActivityAt: now,
		}
		err = r.chats.CreateChat(ctx, chat)
		if err == nil {
			observability.IncChatCreated()
			r.notifier.ChatCreated(ctx, chat)
			return chat, true, nil
		}
		if !errors.Is(err, repositories.ErrDuplicate) {
			return models.Chat{}, false, storageError("create chat", err)
		}

		err = apperr.Conflict("chat created concurrently", err)
		observability.IncChatCreateConflict()
		log.Printf("chat create conflict user1=%s user2=%s attempt=%d", user1, user2, attempt)
	}
	return models.Chat{}, false, err
}

// GetChat returns the chat when userID takes part in it.
func (r *Registry) GetChat(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (models.Chat, error) {
	chat, err := r.lookup(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if !chat.HasParticipant(userID) {
		return models.Chat{}, apperr.NotParticipant("user is not a participant of this chat")
	}
	return chat, nil
}

func (r *Registry) lookup(ctx context.Context, chatID uuid.UUID) (models.Chat, error) {
	chat, err := r.chats.GetChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, apperr.NotFound("chat not found")
	}
	if err != nil {
		return models.Chat{}, storageError("get chat", err)
	}
	return chat, nil
}

// ListChatsForUser returns the user's chats, most recently active first.
// Chats without messages come last, newest first.
func (r *Registry) ListChatsForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	chats, err := r.chats.ListChats(ctx, userID)
	if err != nil {
		return nil, storageError("list chats", err)
	}
	return chats, nil
}

// OtherParticipant returns the participant of chat that is not userID.
func (r *Registry) OtherParticipant(chat models.Chat, userID uuid.UUID) (uuid.UUID, error) {
	return chat.OtherParticipant(userID)
}

// DeleteChat removes the chat and its messages on behalf of a participant.
func (r *Registry) DeleteChat(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (err error) {
	ctx, span := startSpan(ctx, "registry.delete_chat", attribute.String("chat.id", chatID.String()))
	defer func() { endSpan(span, err) }()

	if _, err := r.GetChat(ctx, chatID, userID); err != nil {
		return err
	}
	err = r.chats.DeleteChat(ctx, chatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return apperr.NotFound("chat not found")
	}
	if err != nil {
		return storageError("delete chat", err)
	}
	return nil
}
