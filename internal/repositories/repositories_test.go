package repositories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/db"
	"pairchat/internal/models"
)

func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conn, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, repo *UserRepo, name string) models.User {
	t.Helper()
	u := models.User{
		ID:           uuid.New(),
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
		LastSeen:     base,
		CreatedAt:    base,
	}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	return u
}

func seedChat(t *testing.T, repo *ChatRepo, a, b uuid.UUID, at time.Time) models.Chat {
	t.Helper()
	u1, u2 := models.OrderedPair(a, b)
	chat := models.Chat{ID: uuid.New(), User1ID: u1, User2ID: u2, CreatedAt: at, LastActivityAt: at}
	require.NoError(t, repo.CreateChat(context.Background(), chat))
	return chat
}

func text(s string) *string { return &s }

func TestUserRepoDuplicateAndLookup(t *testing.T) {
	conn := openDB(t)
	users := NewUserRepo(conn)
	ctx := context.Background()

	alice := seedUser(t, users, "alice")

	dup := alice
	dup.ID = uuid.New()
	dup.Email = "other@example.com"
	assert.ErrorIs(t, users.CreateUser(ctx, dup), ErrDuplicate)

	got, err := users.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.True(t, got.CreatedAt.Equal(base))

	_, err = users.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)

	bio := "hello"
	updated, err := users.UpdateProfile(ctx, alice.ID, &bio, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", updated.Bio)
	assert.Nil(t, updated.AvatarRef)

	assert.ErrorIs(t, users.TouchLastSeen(ctx, uuid.New(), base), ErrUserNotFound)
}

func TestChatRepoRejectsSecondChatForPair(t *testing.T) {
	conn := openDB(t)
	users := NewUserRepo(conn)
	chats := NewChatRepo(conn)
	ctx := context.Background()

	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")
	first := seedChat(t, chats, alice.ID, bob.ID, base)

	u1, u2 := models.OrderedPair(bob.ID, alice.ID)
	err := chats.CreateChat(ctx, models.Chat{ID: uuid.New(), User1ID: u1, User2ID: u2, CreatedAt: base, LastActivityAt: base})
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := chats.GetChatByPair(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestChatRepoConcurrentCreateKeepsOneRow(t *testing.T) {
	conn := openDB(t)
	users := NewUserRepo(conn)
	chats := NewChatRepo(conn)
	ctx := context.Background()

	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")
	u1, u2 := models.OrderedPair(alice.ID, bob.ID)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = chats.CreateChat(ctx, models.Chat{ID: uuid.New(), User1ID: u1, User2ID: u2, CreatedAt: base, LastActivityAt: base})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t, errors.Is(err, ErrDuplicate), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, created)

	list, err := chats.ListChats(ctx, alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAppendMessageBumpsChatActivity(t *testing.T) {
	conn := openDB(t)
	users := NewUserRepo(conn)
	chats := NewChatRepo(conn)
	messages := NewMessageRepo(conn)
	ctx := context.Background()

	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")
	chat := seedChat(t, chats, alice.ID, bob.ID, base)

	// a clock that does not move still produces increasing timestamps
	first, err := messages.AppendMessage(ctx, models.Message{
		ID: uuid.New(), ChatID: chat.ID, SenderID: alice.ID,
		ContentType: models.ContentText, TextContent: text("hi"), CreatedAt: base,
	})
	require.NoError(t, err)
	second, err := messages.AppendMessage(ctx, models.Message{
		ID: uuid.New(), ChatID: chat.ID, SenderID: bob.ID,
		ContentType: models.ContentText, TextContent: text("hey"), CreatedAt: base,
	})
	require.NoError(t, err)
	assert.True(t, second.CreatedAt.After(first.CreatedAt))

	stored, err := chats.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastActivityAt.Equal(second.CreatedAt))
	require.True(t, stored.LastMessageID.Valid)
	assert.Equal(t, second.ID, stored.LastMessageID.UUID)

	last, err := messages.LastMessage(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, last.ID)

	_, err = messages.AppendMessage(ctx, models.Message{
		ID: uuid.New(), ChatID: uuid.New(), SenderID: bob.ID,
		ContentType: models.ContentText, TextContent: text("lost"), CreatedAt: base,
	})
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestAppendMessageRejectsMixedPayload(t *testing.T) {
	conn := openDB(t)
	users := NewUserRepo(conn)
	chats := NewChatRepo(conn)
	messages := NewMessageRepo(conn)
	ctx := context.Background()

	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")
	chat := seedChat(t, chats, alice.ID, bob.ID, base)

	_, err := messages.AppendMessage(ctx, models.Message{
		ID: uuid.New(), ChatID: chat.ID, SenderID: alice.ID,
		ContentType: models.ContentImage, TextContent: text("caption"), MediaRef: text("/media/a.png"), CreatedAt: base,
	})
	require.Error(t, err)

	stored, err := chats.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.False(t, stored.LastMessageID.Valid)
}

func TestListPageMarkingRead(t *testing.T) {
	conn := openDB(t)
	users := NewUserRepo(conn)
	chats := NewChatRepo(conn)
	messages := NewMessageRepo(conn)
	ctx := context.Background()

	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")
	chat := seedChat(t, chats, alice.ID, bob.ID, base)

	for i := 0; i < 3; i++ {
		_, err := messages.AppendMessage(ctx, models.Message{
			ID: uuid.New(), ChatID: chat.ID, SenderID: alice.ID,
			ContentType: models.ContentText, TextContent: text("ping"), CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	_, err := messages.AppendMessage(ctx, models.Message{
		ID: uuid.New(), ChatID: chat.ID, SenderID: bob.ID,
		ContentType: models.ContentText, TextContent: text("pong"), CreatedAt: base.Add(time.Minute),
	})
	require.NoError(t, err)

	count, err := messages.UnreadCount(ctx, chat.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	page, marked, err := messages.ListPageMarkingRead(ctx, chat.ID, bob.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), marked)
	require.Len(t, page, 2)
	assert.Equal(t, "pong", *page[0].TextContent)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))
	// bob's own message stays unread for alice
	assert.False(t, page[0].IsRead)
	assert.True(t, page[1].IsRead)

	count, err = messages.UnreadCount(ctx, chat.ID, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = messages.UnreadCount(ctx, chat.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	again, err := messages.MarkRead(ctx, chat.ID, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, again)

	empty, _, err := messages.ListPageMarkingRead(ctx, chat.ID, bob.ID, 50, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, _, err = messages.ListPageMarkingRead(ctx, uuid.New(), bob.ID, 50, 0)
	assert.ErrorIs(t, err, ErrChatNotFound)
}

func TestListChatSummariesOrderAndUnread(t *testing.T) {
	conn := openDB(t)
	users := NewUserRepo(conn)
	chats := NewChatRepo(conn)
	messages := NewMessageRepo(conn)
	ctx := context.Background()

	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")
	carol := seedUser(t, users, "carol")
	dave := seedUser(t, users, "dave")

	withBob := seedChat(t, chats, alice.ID, bob.ID, base)
	withCarol := seedChat(t, chats, carol.ID, alice.ID, base.Add(time.Second))
	silent := seedChat(t, chats, alice.ID, dave.ID, base.Add(2*time.Second))

	_, err := messages.AppendMessage(ctx, models.Message{
		ID: uuid.New(), ChatID: withCarol.ID, SenderID: carol.ID,
		ContentType: models.ContentText, TextContent: text("first"), CreatedAt: base.Add(time.Minute),
	})
	require.NoError(t, err)
	last, err := messages.AppendMessage(ctx, models.Message{
		ID: uuid.New(), ChatID: withBob.ID, SenderID: bob.ID,
		ContentType: models.ContentAudio, MediaRef: text("/media/v.ogg"), CreatedAt: base.Add(2 * time.Minute),
	})
	require.NoError(t, err)

	list, err := chats.ListChatSummaries(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, withBob.ID, list[0].Chat.ID)
	assert.Equal(t, bob.ID, list[0].Other.ID)
	assert.Equal(t, "bob", list[0].Other.Username)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, last.ID, list[0].LastMessage.ID)
	assert.Equal(t, models.ContentAudio, list[0].LastMessage.ContentType)
	assert.Equal(t, 1, list[0].UnreadCount)

	assert.Equal(t, withCarol.ID, list[1].Chat.ID)
	assert.Equal(t, carol.ID, list[1].Other.ID)
	assert.Equal(t, 1, list[1].UnreadCount)

	assert.Equal(t, silent.ID, list[2].Chat.ID)
	assert.Nil(t, list[2].LastMessage)
	assert.Zero(t, list[2].UnreadCount)

	forBob, err := chats.ListChatSummaries(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	assert.Equal(t, alice.ID, forBob[0].Other.ID)
	assert.Zero(t, forBob[0].UnreadCount)
}

func TestDeleteUserCascades(t *testing.T) {
	conn := openDB(t)
	users := NewUserRepo(conn)
	chats := NewChatRepo(conn)
	messages := NewMessageRepo(conn)
	ctx := context.Background()

	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")
	chat := seedChat(t, chats, alice.ID, bob.ID, base)
	msg, err := messages.AppendMessage(ctx, models.Message{
		ID: uuid.New(), ChatID: chat.ID, SenderID: alice.ID,
		ContentType: models.ContentText, TextContent: text("bye"), CreatedAt: base,
	})
	require.NoError(t, err)

	require.NoError(t, users.DeleteUser(ctx, alice.ID))

	_, err = chats.GetChat(ctx, chat.ID)
	assert.ErrorIs(t, err, ErrChatNotFound)
	_, err = messages.LastMessage(ctx, msg.ChatID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	list, err := chats.ListChats(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, users.DeleteUser(ctx, alice.ID), ErrUserNotFound)
}

func TestDeleteChatRemovesMessages(t *testing.T) {
	conn := openDB(t)
	users := NewUserRepo(conn)
	chats := NewChatRepo(conn)
	messages := NewMessageRepo(conn)
	ctx := context.Background()

	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")
	chat := seedChat(t, chats, alice.ID, bob.ID, base)
	_, err := messages.AppendMessage(ctx, models.Message{
		ID: uuid.New(), ChatID: chat.ID, SenderID: alice.ID,
		ContentType: models.ContentText, TextContent: text("x"), CreatedAt: base,
	})
	require.NoError(t, err)

	require.NoError(t, chats.DeleteChat(ctx, chat.ID))
	_, err = messages.LastMessage(ctx, chat.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.ErrorIs(t, chats.DeleteChat(ctx, chat.ID), ErrChatNotFound)
}

func TestNextTimestamp(t *testing.T) {
	last := base.Add(500 * time.Nanosecond)
	assert.Equal(t, base.Add(time.Microsecond), NextTimestamp(last, base))
	assert.Equal(t, base.Add(time.Second), NextTimestamp(base, base.Add(time.Second)))
	assert.Equal(t, base.Add(time.Microsecond), NextTimestamp(base, base))
}
