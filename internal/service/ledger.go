package service

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"pairchat/internal/apperr"
	"pairchat/internal/models"
	"pairchat/internal/observability"
	"pairchat/internal/repositories"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// MessageInput is the payload of a new message. Text is required for text
// messages and media (MediaRef or Attachment) for image and audio ones;
// supplying the other kind is rejected. Empty strings count as absent.
type MessageInput struct {
	ContentType models.ContentType `json:"content_type"`
	Text        *string            `json:"text_content"`
	MediaRef    *string            `json:"media_content"`
	// Attachment is stored only after the message passed every check.
	Attachment Attachment `json:"-"`
}

// Attachment is uploaded media that has not been stored yet.
type Attachment interface {
	Store(ctx context.Context) (ref string, err error)
	// Discard removes a stored attachment whose message was not committed.
	Discard(ctx context.Context, ref string)
}

// Ledger appends and pages through chat messages.
type Ledger struct {
	registry *Registry
	reads    *ReadTracker
	messages repositories.MessageRepository
	notifier Notifier
	now      Clock
}

func NewLedger(registry *Registry, reads *ReadTracker, messages repositories.MessageRepository, notifier Notifier) *Ledger {
	return &Ledger{
		registry: registry,
		reads:    reads,
		messages: messages,
		notifier: notifierOrNop(notifier),
		now:      UTCNow,
	}
}

func present(s *string) bool {
	return s != nil && *s != ""
}

// normalize validates the payload against its content type.
func (in MessageInput) normalize() (MessageInput, error) {
	if !in.ContentType.Valid() {
		return in, apperr.Invalid("content_type", "must be one of text, image, audio")
	}
	if present(in.MediaRef) && in.Attachment != nil {
		return in, apperr.Invalid("media_content", "cannot be combined with an uploaded file")
	}
	hasText, hasMedia := present(in.Text), present(in.MediaRef) || in.Attachment != nil

	switch {
	case in.ContentType == models.ContentText && !hasText:
		return in, apperr.Mismatch("text_content", "text messages require text content")
	case in.ContentType == models.ContentText && hasMedia:
		return in, apperr.Mismatch("media_content", "text messages cannot carry media")
	case in.ContentType.IsMedia() && !hasMedia:
		return in, apperr.Mismatch("media_content", string(in.ContentType)+" messages require a media reference")
	case in.ContentType.IsMedia() && hasText:
		return in, apperr.Mismatch("text_content", string(in.ContentType)+" messages cannot carry text")
	}

	if !hasText {
		in.Text = nil
	}
	if !present(in.MediaRef) {
		in.MediaRef = nil
	}
	return in, nil
}

// AppendMessage adds a message from senderID to the chat. The message and
// the chat's new activity time are committed together.
func (l *Ledger) AppendMessage(ctx context.Context, chatID uuid.UUID, senderID uuid.UUID, in MessageInput) (msg models.Message, err error) {
	ctx, span := startSpan(ctx, "ledger.append_message",
		attribute.String("chat.id", chatID.String()),
		attribute.String("message.content_type", string(in.ContentType)))
	defer func() { endSpan(span, err) }()

	if _, err := l.registry.GetChat(ctx, chatID, senderID); err != nil {
		return models.Message{}, err
	}
	in, err = in.normalize()
	if err != nil {
		return models.Message{}, err
	}
	return l.append(ctx, chatID, senderID, in)
}

func (l *Ledger) append(ctx context.Context, chatID uuid.UUID, senderID uuid.UUID, in MessageInput) (models.Message, error) {
	if in.Attachment != nil {
		ref, err := in.Attachment.Store(ctx)
		if err != nil {
			if apperr.CodeOf(err) != apperr.CodeInternal {
				return models.Message{}, err
			}
			return models.Message{}, storageError("store attachment", err)
		}
		in.MediaRef = &ref
	}

	msg, err := l.messages.AppendMessage(ctx, models.Message{
		ID:          uuid.New(),
		ChatID:      chatID,
		SenderID:    senderID,
		ContentType: in.ContentType,
		TextContent: in.Text,
		MediaRef:    in.MediaRef,
		CreatedAt:   l.now(),
	})
	if err != nil && in.Attachment != nil {
		in.Attachment.Discard(ctx, *in.MediaRef)
	}
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Message{}, apperr.NotFound("chat not found")
	}
	if err != nil {
		return models.Message{}, storageError("append message", err)
	}

	observability.IncMessageAppended(string(msg.ContentType))
	l.notifier.MessageCreated(ctx, msg)
	return msg, nil
}

// SendMessage delivers a message to recipientID, starting their chat with
// senderID when there is none yet.
func (l *Ledger) SendMessage(ctx context.Context, senderID uuid.UUID, recipientID uuid.UUID, in MessageInput) (msg models.Message, err error) {
	ctx, span := startSpan(ctx, "ledger.send_message")
	defer func() { endSpan(span, err) }()

	in, err = in.normalize()
	if err != nil {
		return models.Message{}, err
	}
	chat, _, err := l.registry.FindOrCreateChat(ctx, senderID, recipientID)
	if err != nil {
		return models.Message{}, err
	}
	return l.append(ctx, chat.ID, senderID, in)
}

// GetMessages returns one page of the chat, newest first. Every unread
// message from the other participant is marked read in the same
// transaction, whichever page is requested. Pages past the end are empty.
func (l *Ledger) GetMessages(ctx context.Context, chatID uuid.UUID, userID uuid.UUID, pageSize, page int) (msgs []models.Message, err error) {
	ctx, span := startSpan(ctx, "ledger.get_messages",
		attribute.String("chat.id", chatID.String()),
		attribute.Int("page", page),
		attribute.Int("page_size", pageSize))
	defer func() { endSpan(span, err) }()

	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, apperr.Invalid("page_size", "must be between 1 and 200")
	}
	if page < 1 {
		return nil, apperr.Invalid("page", "must be at least 1")
	}
	chat, err := l.registry.GetChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	if page-1 > math.MaxInt/pageSize {
		// the offset is not representable, so the page is past the end
		if _, err := l.reads.MarkReadOnAccess(ctx, chat, userID); err != nil {
			return nil, err
		}
		return []models.Message{}, nil
	}

	msgs, marked, err := l.messages.ListPageMarkingRead(ctx, chatID, userID, pageSize, (page-1)*pageSize)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return nil, apperr.NotFound("chat not found")
	}
	if err != nil {
		return nil, storageError("get messages", err)
	}
	l.reads.recordRead(ctx, chatID, userID, marked)
	return msgs, nil
}

// LastMessage returns the newest message of the chat, or nil when the chat
// has none.
func (l *Ledger) LastMessage(ctx context.Context, chatID uuid.UUID) (*models.Message, error) {
	chat, err := l.registry.lookup(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasMessages() {
		return nil, nil
	}
	msg, err := l.messages.LastMessage(ctx, chatID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("last message", err)
	}
	return &msg, nil
}
