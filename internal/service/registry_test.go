package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pairchat/internal/apperr"
	"pairchat/internal/mocks"
	"pairchat/internal/models"
	"pairchat/internal/repositories"
)

func TestFindOrCreateChatResolvesLostRace(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	notifier := new(mocks.NotifierMock)
	registry := NewRegistry(chats, users, notifier)

	a, b := models.OrderedPair(uuid.New(), uuid.New())
	winner := models.Chat{ID: uuid.New(), User1ID: a, User2ID: b}

	users.On("GetUser", mock.Anything, mock.Anything).Return(models.User{}, nil).Twice()
	chats.On("GetChatByPair", mock.Anything, a, b).Return(models.Chat{}, repositories.ErrChatNotFound).Once()
	chats.On("CreateChat", mock.Anything, mock.AnythingOfType("models.Chat")).Return(repositories.ErrDuplicate).Once()
	chats.On("GetChatByPair", mock.Anything, a, b).Return(winner, nil).Once()

	chat, created, err := registry.FindOrCreateChat(context.Background(), b, a)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, chat.ID)

	users.AssertExpectations(t)
	chats.AssertExpectations(t)
	notifier.AssertNotCalled(t, "ChatCreated", mock.Anything, mock.Anything)
}

func TestFindOrCreateChatGivesUpAfterRepeatedConflicts(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	registry := NewRegistry(chats, users, nil)

	users.On("GetUser", mock.Anything, mock.Anything).Return(models.User{}, nil)
	chats.On("GetChatByPair", mock.Anything, mock.Anything, mock.Anything).Return(models.Chat{}, repositories.ErrChatNotFound).Times(maxCreateAttempts)
	chats.On("CreateChat", mock.Anything, mock.Anything).Return(repositories.ErrDuplicate).Times(maxCreateAttempts)

	_, _, err := registry.FindOrCreateChat(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrConflict)
	chats.AssertExpectations(t)
}

func TestFindOrCreateChatStoresOrderedPair(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	notifier := new(mocks.NotifierMock)
	registry := NewRegistry(chats, users, notifier)
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	registry.now = func() time.Time { return now }

	low, high := models.OrderedPair(uuid.New(), uuid.New())

	users.On("GetUser", mock.Anything, mock.Anything).Return(models.User{}, nil)
	chats.On("GetChatByPair", mock.Anything, low, high).Return(models.Chat{}, repositories.ErrChatNotFound).Once()
	chats.On("CreateChat", mock.Anything, mock.MatchedBy(func(c models.Chat) bool {
		return c.User1ID == low && c.User2ID == high && c.CreatedAt.Equal(now) && c.LastActivityAt.Equal(now) && !c.LastMessageID.Valid
	})).Return(nil).Once()
	notifier.On("ChatCreated", mock.Anything, mock.AnythingOfType("models.Chat")).Once()

	_, created, err := registry.FindOrCreateChat(context.Background(), high, low)
	require.NoError(t, err)
	assert.True(t, created)
	chats.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestGetMessagesAbortsWhenMarkingFails(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	notifier := new(mocks.NotifierMock)

	registry := NewRegistry(chats, users, notifier)
	reads := NewReadTracker(messages, notifier)
	ledger := NewLedger(registry, reads, messages, notifier)

	a, b := models.OrderedPair(uuid.New(), uuid.New())
	chat := models.Chat{ID: uuid.New(), User1ID: a, User2ID: b}
	chats.On("GetChat", mock.Anything, chat.ID).Return(chat, nil).Once()
	messages.On("ListPageMarkingRead", mock.Anything, chat.ID, a, 50, 0).Return(nil, int64(0), assert.AnError).Once()

	_, err := ledger.GetMessages(context.Background(), chat.ID, a, 50, 1)
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	assert.ErrorIs(t, err, assert.AnError)
	notifier.AssertNotCalled(t, "MessagesRead", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

type attachmentMock struct {
	mock.Mock
}

func (m *attachmentMock) Store(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *attachmentMock) Discard(ctx context.Context, ref string) {
	m.Called(ctx, ref)
}

func TestAppendDiscardsAttachmentWhenStorageFails(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)

	registry := NewRegistry(chats, users, nil)
	ledger := NewLedger(registry, NewReadTracker(messages, nil), messages, nil)

	a, b := models.OrderedPair(uuid.New(), uuid.New())
	chat := models.Chat{ID: uuid.New(), User1ID: a, User2ID: b}
	chats.On("GetChat", mock.Anything, chat.ID).Return(chat, nil).Once()
	messages.On("AppendMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.MediaRef != nil && *m.MediaRef == "/media/a.ogg"
	})).Return(models.Message{}, assert.AnError).Once()

	file := new(attachmentMock)
	file.On("Store", mock.Anything).Return("/media/a.ogg", nil).Once()
	file.On("Discard", mock.Anything, "/media/a.ogg").Once()

	_, err := ledger.AppendMessage(context.Background(), chat.ID, a, MessageInput{ContentType: models.ContentAudio, Attachment: file})
	assert.Equal(t, apperr.CodeInternal, apperr.CodeOf(err))
	file.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestAppendReportsAttachmentRejection(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	chats := new(mocks.ChatRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)

	registry := NewRegistry(chats, users, nil)
	ledger := NewLedger(registry, NewReadTracker(messages, nil), messages, nil)

	a, b := models.OrderedPair(uuid.New(), uuid.New())
	chat := models.Chat{ID: uuid.New(), User1ID: a, User2ID: b}
	chats.On("GetChat", mock.Anything, chat.ID).Return(chat, nil).Once()

	file := new(attachmentMock)
	file.On("Store", mock.Anything).Return("", apperr.Invalid("file", "file must have an extension")).Once()

	_, err := ledger.AppendMessage(context.Background(), chat.ID, b, MessageInput{ContentType: models.ContentImage, Attachment: file})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	messages.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
	file.AssertNotCalled(t, "Discard", mock.Anything, mock.Anything)
}
