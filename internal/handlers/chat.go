package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pairchat/internal/media"
	"pairchat/internal/models"
	"pairchat/internal/service"
)

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	identity    *service.Identity
	registry    *service.Registry
	ledger      *service.Ledger
	reads       *service.ReadTracker
	projector   *service.Projector
	media       media.Store
	maxUploadMB int64
}

// ChatServices groups the core services a ChatHandler calls.
type ChatServices struct {
	Identity  *service.Identity
	Registry  *service.Registry
	Ledger    *service.Ledger
	Reads     *service.ReadTracker
	Projector *service.Projector
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(svc ChatServices, store media.Store, maxUploadMB int64) *ChatHandler {
	return &ChatHandler{
		identity:    svc.Identity,
		registry:    svc.Registry,
		ledger:      svc.Ledger,
		reads:       svc.Reads,
		projector:   svc.Projector,
		media:       store,
		maxUploadMB: maxUploadMB,
	}
}

// ListChats returns the caller's chats, most recently active first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	chats, err := h.projector.ProjectChatList(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if chats == nil {
		chats = []models.ChatSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// StartChat creates or returns the chat between the caller and recipient_id.
func (h *ChatHandler) StartChat(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req struct {
		RecipientID string `json:"recipient_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "invalid JSON body")
		return
	}
	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		badRequest(c, "recipient_id", "invalid id")
		return
	}

	chat, created, err := h.registry.FindOrCreateChat(c.Request.Context(), userID, recipientID)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, chat)
}

// GetChat returns one chat with its other participant and newest message.
func (h *ChatHandler) GetChat(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	chat, err := h.registry.GetChat(ctx, chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	otherID, err := h.registry.OtherParticipant(chat, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	other, err := h.identity.GetUser(ctx, otherID)
	if err != nil {
		respondError(c, err)
		return
	}
	last, err := h.ledger.LastMessage(ctx, chat.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ChatSummary{Chat: chat, Other: other.Public(), LastMessage: last})
}

// DeleteChat removes the chat for both participants.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}

	if err := h.registry.DeleteChat(c.Request.Context(), chatID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetChatMessages returns a page of messages and marks the other side's
// messages as read.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	pageSize, ok := intQuery(c, "page_size", service.DefaultPageSize)
	if !ok {
		return
	}

	msgs, err := h.ledger.GetMessages(c.Request.Context(), chatID, userID, pageSize, page)
	if err != nil {
		respondError(c, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "page": page, "page_size": pageSize})
}

// PostChatMessage appends a message to an existing chat.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}
	in, ok := h.bindMessage(c, nil)
	if !ok {
		return
	}

	msg, err := h.ledger.AppendMessage(c.Request.Context(), chatID, userID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// SendMessage delivers a message to recipient_id, starting a chat if needed.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var recipient string
	in, ok := h.bindMessage(c, &recipient)
	if !ok {
		return
	}
	recipientID, err := uuid.Parse(recipient)
	if err != nil {
		badRequest(c, "recipient_id", "invalid id")
		return
	}

	msg, err := h.ledger.SendMessage(c.Request.Context(), userID, recipientID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// UnreadCount reports how many messages from the other side the caller has
// not read yet.
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := parseUUIDParam(c, "chat_id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	chat, err := h.registry.GetChat(ctx, chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	count, err := h.reads.UnreadCount(ctx, chat, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_id": chat.ID, "unread_count": count})
}

// bindMessage reads a message from a JSON body or from a multipart form
// whose "file" part becomes the attachment. Nothing is stored here. When recipient is non-nil
// the recipient_id field is read into it.
func (h *ChatHandler) bindMessage(c *gin.Context, recipient *string) (service.MessageInput, bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if !parseMultipart(c, h.maxUploadMB<<20) {
			return service.MessageInput{}, false
		}
		in := service.MessageInput{ContentType: models.ContentType(c.PostForm("content_type"))}
		if text, ok := c.GetPostForm("text_content"); ok {
			in.Text = &text
		}
		if recipient != nil {
			*recipient = c.PostForm("recipient_id")
		}
		if file, ok := attachedFile(c, h.media); ok {
			if h.media == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "media uploads are disabled"})
				return in, false
			}
			in.Attachment = file
		}
		return in, true
	}

	var req struct {
		service.MessageInput
		RecipientID string `json:"recipient_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "invalid JSON body")
		return service.MessageInput{}, false
	}
	if recipient != nil {
		*recipient = req.RecipientID
	}
	return req.MessageInput, true
}

func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, name, "must be an integer")
		return 0, false
	}
	return v, true
}
