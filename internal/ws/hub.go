package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pairchat/internal/models"
	"pairchat/internal/observability"
)

const writeWait = 10 * time.Second

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Hub maintains active websocket rooms, one per chat.
type Hub struct {
	chatRooms    map[uuid.UUID]map[Conn]bool
	chatConnInfo map[uuid.UUID]map[Conn]ConnInfo
	mu           sync.RWMutex
	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		chatRooms:    make(map[uuid.UUID]map[Conn]bool),
		chatConnInfo: make(map[uuid.UUID]map[Conn]ConnInfo),
	}
}

// AddChatClient registers a websocket connection to a chat room.
func (h *Hub) AddChatClient(chatID uuid.UUID, conn Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.chatRooms[chatID]; !ok {
		h.chatRooms[chatID] = make(map[Conn]bool)
	}
	h.chatRooms[chatID][conn] = true
	if _, ok := h.chatConnInfo[chatID]; !ok {
		h.chatConnInfo[chatID] = make(map[Conn]ConnInfo)
	}
	h.chatConnInfo[chatID][conn] = info
}

// RemoveChatClient removes a chat websocket connection.
func (h *Hub) RemoveChatClient(chatID uuid.UUID, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.chatRooms[chatID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.chatRooms, chatID)
		}
	}
	if infos, ok := h.chatConnInfo[chatID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.chatConnInfo, chatID)
		}
	}
}

// ClientCount reports how many connections are open for a chat.
func (h *Hub) ClientCount(chatID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chatRooms[chatID])
}

// BroadcastChatMessage sends message to all clients in a chat.
func (h *Hub) BroadcastChatMessage(chatID uuid.UUID, msg models.Message) {
	h.broadcast(chatID, models.ChatEvent{Type: "message", Message: &msg})
}

// BroadcastRead tells clients that readerID has read count messages.
func (h *Hub) BroadcastRead(chatID uuid.UUID, readerID uuid.UUID, count int64) {
	h.broadcast(chatID, models.ChatEvent{Type: "read", ReaderID: &readerID, Count: count})
}

func (h *Hub) broadcast(chatID uuid.UUID, event models.ChatEvent) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.chatRooms[chatID]))
	for conn := range h.chatRooms[chatID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("websocket marshal error: %v", err)
		return
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			h.publishWSError(chatID, conn, err)
			conn.Close()
			h.RemoveChatClient(chatID, conn)
			continue
		}
		observability.IncWSEvent("chat", event.Type)
	}
}

func (h *Hub) publishWSError(chatID uuid.UUID, conn Conn, err error) {
	info, ok := h.getConnInfo(chatID, conn)
	if !ok {
		return
	}

	payload := wsPayload(chatID, "ws_error", info, err.Error())
	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), wsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("chat", "ws_error")
}

func (h *Hub) getConnInfo(chatID uuid.UUID, conn Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.chatConnInfo[chatID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}

const wsRoutingKey = "ws_events.chats"

func wsPayload(chatID uuid.UUID, event string, info ConnInfo, reason string) map[string]any {
	return map[string]any{
		"ws": map[string]any{
			"kind":        "chat",
			"resource_id": chatID.String(),
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]any{
			"user_id":   info.UserID.String(),
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
