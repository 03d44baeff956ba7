package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"pairchat/internal/models"
	"pairchat/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) TouchLastSeen(ctx context.Context, userID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *UserRepositoryMock) UpdateProfile(ctx context.Context, userID uuid.UUID, bio *string, avatarRef *string) (models.User, error) {
	args := m.Called(ctx, userID, bio, avatarRef)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateChat(ctx context.Context, chat models.Chat) error {
	args := m.Called(ctx, chat)
	return args.Error(0)
}

func (m *ChatRepositoryMock) GetChatByPair(ctx context.Context, a, b uuid.UUID) (models.Chat, error) {
	args := m.Called(ctx, a, b)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID uuid.UUID) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) ListChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	var list []models.Chat
	if val := args.Get(0); val != nil {
		list = val.([]models.Chat)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) ListChatSummaries(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ChatSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatSummary)
	}
	return list, args.Error(1)
}

func (m *ChatRepositoryMock) DeleteChat(ctx context.Context, chatID uuid.UUID) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) AppendMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var stored models.Message
	if val := args.Get(0); val != nil {
		stored = val.(models.Message)
	}
	return stored, args.Error(1)
}

func (m *MessageRepositoryMock) ListPageMarkingRead(ctx context.Context, chatID uuid.UUID, readerID uuid.UUID, limit, offset int) ([]models.Message, int64, error) {
	args := m.Called(ctx, chatID, readerID, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Get(1).(int64), args.Error(2)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, chatID uuid.UUID, readerID uuid.UUID) (int64, error) {
	args := m.Called(ctx, chatID, readerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) LastMessage(ctx context.Context, chatID uuid.UUID) (models.Message, error) {
	args := m.Called(ctx, chatID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) UnreadCount(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, chatID, userID)
	return args.Int(0), args.Error(1)
}

// NotifierMock records committed-change notifications.
type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) ChatCreated(ctx context.Context, chat models.Chat) {
	m.Called(ctx, chat)
}

func (m *NotifierMock) MessageCreated(ctx context.Context, msg models.Message) {
	m.Called(ctx, msg)
}

func (m *NotifierMock) MessagesRead(ctx context.Context, chatID uuid.UUID, readerID uuid.UUID, count int64) {
	m.Called(ctx, chatID, readerID, count)
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ repositories.ChatRepository = (*ChatRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
