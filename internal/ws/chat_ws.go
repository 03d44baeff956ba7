package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pairchat/internal/apperr"
	"pairchat/internal/models"
	"pairchat/internal/observability"
)

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	Parse(token string) (uuid.UUID, error)
}

// ChatAccess returns a chat only to its participants.
type ChatAccess interface {
	GetChat(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (models.Chat, error)
}

// ChatWebSocketHandler handles chat websocket connections.
type ChatWebSocketHandler struct {
	hub    *Hub
	chats  ChatAccess
	tokens TokenParser
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, chats ChatAccess, tokens TokenParser) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, chats: chats, tokens: tokens}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and registers client.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	ctx, span := observability.Tracer("ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.authenticate(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if _, err := h.chats.GetChat(ctx, chatID, userID); err != nil {
		switch apperr.CodeOf(err) {
		case apperr.CodeNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		case apperr.CodeNotParticipant:
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for chat"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	h.hub.AddChatClient(chatID, conn, info)

	observability.IncWSActive("chat")
	observability.IncWSEvent("chat", "ws_connect")
	publishWSEvent(chatID, "ws_connect", info, "")

	// Keep connection alive and clean on close
	go func() {
		var closeReason string
		defer func() {
			h.hub.RemoveChatClient(chatID, conn)
			observability.DecWSActive("chat")
			observability.IncWSEvent("chat", "ws_disconnect")
			publishWSEvent(chatID, "ws_disconnect", info, closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("chat", "ws_error")
					publishWSEvent(chatID, "ws_error", info, closeReason)
				}
				return
			}
		}
	}()
}

func (h *ChatWebSocketHandler) authenticate(c *gin.Context) (uuid.UUID, error) {
	token := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return uuid.Nil, apperr.Unauthenticated("invalid authorization header")
		}
		token = parts[1]
	}
	if token == "" {
		return uuid.Nil, apperr.Unauthenticated("missing token")
	}
	return h.tokens.Parse(token)
}

func publishWSEvent(chatID uuid.UUID, event string, info ConnInfo, reason string) {
	_ = observability.PublishEvent(context.Background(), wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   wsPayload(chatID, event, info, reason),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
