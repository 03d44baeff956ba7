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

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, chat models.Chat) error
	GetChatByPair(ctx context.Context, a, b uuid.UUID) (models.Chat, error)
	GetChat(ctx context.Context, chatID uuid.UUID) (models.Chat, error)
	ListChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)
	ListChatSummaries(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error)
	DeleteChat(ctx context.Context, chatID uuid.UUID) error
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, user1_id, user2_id, created_at, last_activity_at, last_message_id`

const chatSelectColumns = `c.id AS id, c.user1_id AS user1_id, c.user2_id AS user2_id, c.created_at AS created_at,
            c.last_activity_at AS last_activity_at, c.last_message_id AS last_message_id`

// Chats that never received a message sort after every active chat.
const chatOrder = `ORDER BY (c.last_message_id IS NULL), c.last_activity_at DESC, c.created_at DESC, c.id`

// CreateChat inserts a chat. The participants must already be ordered with
// models.OrderedPair; a second chat for the same pair yields ErrDuplicate.
func (r *ChatRepo) CreateChat(ctx context.Context, chat models.Chat) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO chats (`+chatColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		chat.ID, chat.User1ID, chat.User2ID, chat.CreatedAt, chat.LastActivityAt, chat.LastMessageID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetChatByPair finds the chat between two users regardless of argument order.
func (r *ChatRepo) GetChatByPair(ctx context.Context, a, b uuid.UUID) (models.Chat, error) {
	user1, user2 := models.OrderedPair(a, b)

	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, r.db.Rebind(`SELECT `+chatColumns+` FROM chats WHERE user1_id=? AND user2_id=?`), user1, user2)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID uuid.UUID) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, r.db.Rebind(`SELECT `+chatColumns+` FROM chats WHERE id=?`), chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// ListChats returns the chats of the user, most recently active first.
func (r *ChatRepo) ListChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	query := `SELECT ` + chatSelectColumns + `
        FROM chats c
        WHERE c.user1_id=? OR c.user2_id=?
        ` + chatOrder
	chats := []models.Chat{}
	err := r.db.SelectContext(ctx, &chats, r.db.Rebind(query), userID, userID)
	return chats, err
}

type summaryRow struct {
	models.Chat

	OtherID        uuid.UUID `db:"other_id"`
	OtherUsername  string    `db:"other_username"`
	OtherAvatarRef *string   `db:"other_avatar_ref"`
	OtherBio       string    `db:"other_bio"`
	OtherLastSeen  time.Time `db:"other_last_seen"`

	MsgID          uuid.NullUUID  `db:"msg_id"`
	MsgSenderID    uuid.NullUUID  `db:"msg_sender_id"`
	MsgContentType sql.NullString `db:"msg_content_type"`
	MsgText        *string        `db:"msg_text_content"`
	MsgMediaRef    *string        `db:"msg_media_ref"`
	MsgCreatedAt   sql.NullTime   `db:"msg_created_at"`
	MsgIsRead      sql.NullBool   `db:"msg_is_read"`

	UnreadCount int `db:"unread_count"`
}

// ListChatSummaries materializes the user's chat list in one query: the other
// participant, the last message and the unread count for the user.
func (r *ChatRepo) ListChatSummaries(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	query := `SELECT ` + chatSelectColumns + `,
            u.id AS other_id, u.username AS other_username, u.avatar_ref AS other_avatar_ref,
            u.bio AS other_bio, u.last_seen AS other_last_seen,
            m.id AS msg_id, m.sender_id AS msg_sender_id, m.content_type AS msg_content_type,
            m.text_content AS msg_text_content, m.media_ref AS msg_media_ref,
            m.created_at AS msg_created_at, m.is_read AS msg_is_read,
            (SELECT COUNT(*) FROM messages um
                WHERE um.chat_id = c.id AND um.sender_id <> ? AND um.is_read = FALSE) AS unread_count
        FROM chats c
        JOIN users u ON u.id = CASE WHEN c.user1_id = ? THEN c.user2_id ELSE c.user1_id END
        LEFT JOIN messages m ON m.id = c.last_message_id
        WHERE c.user1_id=? OR c.user2_id=?
        ` + chatOrder

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), userID, userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.ChatSummary{}
	for rows.Next() {
		var row summaryRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan chat summary: %w", err)
		}
		result = append(result, row.summary())
	}
	return result, rows.Err()
}

func (row summaryRow) summary() models.ChatSummary {
	summary := models.ChatSummary{
		Chat: row.Chat,
		Other: models.PublicUser{
			ID:        row.OtherID,
			Username:  row.OtherUsername,
			AvatarRef: row.OtherAvatarRef,
			Bio:       row.OtherBio,
			LastSeen:  row.OtherLastSeen,
		},
		UnreadCount: row.UnreadCount,
	}
	if row.MsgID.Valid {
		summary.LastMessage = &models.Message{
			ID:          row.MsgID.UUID,
			ChatID:      row.ID,
			SenderID:    row.MsgSenderID.UUID,
			ContentType: models.ContentType(row.MsgContentType.String),
			TextContent: row.MsgText,
			MediaRef:    row.MsgMediaRef,
			CreatedAt:   row.MsgCreatedAt.Time,
			IsRead:      row.MsgIsRead.Bool,
		}
	}
	return summary
}

// DeleteChat removes a chat and its messages.
func (r *ChatRepo) DeleteChat(ctx context.Context, chatID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM messages WHERE chat_id=?`), chatID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM chats WHERE id=?`), chatID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrChatNotFound
	}
	return tx.Commit()
}
