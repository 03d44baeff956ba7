package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/apperr"
	"pairchat/internal/models"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	fail    bool
	closed  bool
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestHubAddAndRemoveChatClient(t *testing.T) {
	hub := NewHub()
	chatID := uuid.New()
	conn := &fakeConn{}

	hub.AddChatClient(chatID, conn, ConnInfo{})
	if len(hub.chatRooms) != 1 {
		t.Fatalf("expected chat room to be created")
	}

	hub.RemoveChatClient(chatID, conn)
	if len(hub.chatRooms) != 0 {
		t.Fatalf("expected chat room to be removed")
	}
}

func TestHubBroadcastsToRoomOnly(t *testing.T) {
	hub := NewHub()
	chatID := uuid.New()
	inRoom := &fakeConn{}
	elsewhere := &fakeConn{}
	hub.AddChatClient(chatID, inRoom, ConnInfo{ConnID: "a"})
	hub.AddChatClient(uuid.New(), elsewhere, ConnInfo{ConnID: "b"})

	text := "hi"
	msg := models.Message{ID: uuid.New(), ChatID: chatID, ContentType: models.ContentText, TextContent: &text}
	hub.BroadcastChatMessage(chatID, msg)
	reader := uuid.New()
	hub.BroadcastRead(chatID, reader, 2)

	require.Len(t, inRoom.written, 2)
	assert.Empty(t, elsewhere.written)

	var event models.ChatEvent
	require.NoError(t, json.Unmarshal(inRoom.written[0], &event))
	assert.Equal(t, "message", event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, msg.ID, event.Message.ID)

	require.NoError(t, json.Unmarshal(inRoom.written[1], &event))
	assert.Equal(t, "read", event.Type)
	require.NotNil(t, event.ReaderID)
	assert.Equal(t, reader, *event.ReaderID)
	assert.Equal(t, int64(2), event.Count)
}

func TestHubDropsBrokenConnections(t *testing.T) {
	hub := NewHub()
	chatID := uuid.New()
	broken := &fakeConn{fail: true}
	hub.AddChatClient(chatID, broken, ConnInfo{ConnID: "x", ConnectedAt: time.Now()})

	hub.BroadcastRead(chatID, uuid.New(), 1)

	assert.True(t, broken.closed)
	assert.Zero(t, hub.ClientCount(chatID))
}

type staticTokens struct {
	userID uuid.UUID
}

func (s staticTokens) Parse(token string) (uuid.UUID, error) {
	if token != "good" {
		return uuid.Nil, errors.New("bad token")
	}
	return s.userID, nil
}

type chatAccessFunc func(chatID, userID uuid.UUID) (models.Chat, error)

func (f chatAccessFunc) GetChat(_ context.Context, chatID, userID uuid.UUID) (models.Chat, error) {
	return f(chatID, userID)
}

func TestWebSocketHandshakeAndBroadcast(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userID := uuid.New()
	chatID := uuid.New()
	hub := NewHub()
	access := chatAccessFunc(func(id, user uuid.UUID) (models.Chat, error) {
		if id != chatID {
			return models.Chat{}, apperr.NotFound("chat not found")
		}
		if user != userID {
			return models.Chat{}, apperr.NotParticipant("nope")
		}
		return models.Chat{ID: chatID, User1ID: userID, User2ID: uuid.New()}, nil
	})
	handler := NewChatWebSocketHandler(hub, access, staticTokens{userID: userID})

	r := gin.New()
	r.GET("/ws/chats/:chat_id", handler.Handle)
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chats/"

	_, resp, err := websocket.DefaultDialer.Dial(base+chatID.String()+"?token=bad", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(base+uuid.NewString()+"?token=good", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+chatID.String()+"?token=good", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount(chatID) == 1 }, time.Second, 10*time.Millisecond)

	text := "ping"
	hub.BroadcastChatMessage(chatID, models.Message{ID: uuid.New(), ChatID: chatID, ContentType: models.ContentText, TextContent: &text})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event models.ChatEvent
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "message", event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, "ping", *event.Message.TextContent)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount(chatID) == 0 }, time.Second, 10*time.Millisecond)
}

func TestNewConnIDIsUnique(t *testing.T) {
	a, b := newConnID(), newConnID()
	_, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
