package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"pairchat/internal/models"
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	AppendMessage(ctx context.Context, msg models.Message) (models.Message, error)
	ListPageMarkingRead(ctx context.Context, chatID uuid.UUID, readerID uuid.UUID, limit, offset int) ([]models.Message, int64, error)
	MarkRead(ctx context.Context, chatID uuid.UUID, readerID uuid.UUID) (int64, error)
	LastMessage(ctx context.Context, chatID uuid.UUID) (models.Message, error)
	UnreadCount(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, content_type, text_content, media_ref, created_at, is_read`

// AppendMessage stores msg and moves the chat's activity marker to it in one
// transaction. msg.CreatedAt is raised when needed so that it is strictly
// after the chat's previous activity; the stored message is returned.
func (r *MessageRepo) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var lastActivity time.Time
	err = tx.GetContext(ctx, &lastActivity, tx.Rebind(`SELECT last_activity_at FROM chats WHERE id=?`+forUpdate(r.db)), msg.ChatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrChatNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("lock chat: %w", err)
	}

	msg.CreatedAt = NextTimestamp(lastActivity, msg.CreatedAt)
	msg.IsRead = false

	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO messages (`+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		msg.ID, msg.ChatID, msg.SenderID, msg.ContentType, msg.TextContent, msg.MediaRef, msg.CreatedAt, msg.IsRead); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE chats SET last_activity_at=?, last_message_id=? WHERE id=?`),
		msg.CreatedAt, msg.ID, msg.ChatID); err != nil {
		return models.Message{}, fmt.Errorf("bump chat activity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, fmt.Errorf("commit: %w", err)
	}
	return msg, nil
}

// NextTimestamp returns now, or the smallest storable instant after last when
// now is not already later. Storage keeps microsecond precision.
func NextTimestamp(last, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(last) {
		return last.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now
}

// ListPageMarkingRead marks every unread message not sent by readerID as
// read and returns one page of the chat, newest first. Both happen in the
// same transaction; the number of messages marked is returned as well.
// The chat row is locked first so no append lands between the two.
func (r *MessageRepo) ListPageMarkingRead(ctx context.Context, chatID uuid.UUID, readerID uuid.UUID, limit, offset int) ([]models.Message, int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var found int
	err = tx.GetContext(ctx, &found, tx.Rebind(`SELECT 1 FROM chats WHERE id=?`+forUpdate(r.db)), chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrChatNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("lock chat: %w", err)
	}

	marked, err := markRead(ctx, tx, chatID, readerID)
	if err != nil {
		return nil, 0, err
	}

	msgs := []models.Message{}
	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE chat_id=?
        ORDER BY created_at DESC
        LIMIT ? OFFSET ?`
	if err := tx.SelectContext(ctx, &msgs, tx.Rebind(query), chatID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("commit: %w", err)
	}
	return msgs, marked, nil
}

// MarkRead flips every unread message not sent by readerID to read.
func (r *MessageRepo) MarkRead(ctx context.Context, chatID uuid.UUID, readerID uuid.UUID) (int64, error) {
	return markRead(ctx, r.db, chatID, readerID)
}

func markRead(ctx context.Context, q sqlx.ExtContext, chatID uuid.UUID, readerID uuid.UUID) (int64, error) {
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE messages SET is_read = TRUE
        WHERE chat_id=? AND sender_id<>? AND is_read = FALSE`), chatID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return res.RowsAffected()
}

// LastMessage returns the most recent message of the chat.
func (r *MessageRepo) LastMessage(ctx context.Context, chatID uuid.UUID) (models.Message, error) {
	var msg models.Message
	query := `SELECT ` + messageColumns + ` FROM messages WHERE chat_id=? ORDER BY created_at DESC LIMIT 1`
	err := r.db.GetContext(ctx, &msg, r.db.Rebind(query), chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// UnreadCount counts messages userID has not read yet.
func (r *MessageRepo) UnreadCount(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`SELECT COUNT(*) FROM messages
        WHERE chat_id=? AND sender_id<>? AND is_read = FALSE`), chatID, userID)
	return count, err
}
