package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chat-backend/internal/chat"
	"chat-backend/internal/repositories"
)

// ChatHandler manages private chat endpoints.
type ChatHandler struct {
	chats  *chat.Service
	logger zerolog.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats *chat.Service, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, logger: logger}
}

// ListChats returns the chats visible to the authenticated user.
func (h *ChatHandler) ListChats(c *gin.Context) {
	summaries, err := h.chats.ListChats(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.logger.Error().Err(err).Msg("list chats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// StartChat creates or returns the chat with another user.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		UserID int `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.chats.StartChat(c.Request.Context(), currentUserID(c), req.UserID)
	if err != nil {
		h.writeError(c, err, "could not create chat")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetChatMessages returns the conversation with :user_id and marks it read.
func (h *ChatHandler) GetChatMessages(c *gin.Context) {
	peerID, ok := parseUserIDParam(c)
	if !ok {
		return
	}

	msgs, err := h.chats.GetHistory(c.Request.Context(), currentUserID(c), peerID)
	if err != nil {
		h.writeError(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// PostChatMessage stores a message to :user_id and pushes it when they are online.
func (h *ChatHandler) PostChatMessage(c *gin.Context) {
	receiverID, ok := parseUserIDParam(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.chats.SendMessage(c.Request.Context(), currentUserID(c), receiverID, req.Content)
	if err != nil {
		h.writeError(c, err, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) writeError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrRecipientNotFound), errors.Is(err, repositories.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chat.ErrInvalidContent), errors.Is(err, repositories.ErrSelfChat):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrRateLimited):
		status = http.StatusTooManyRequests
	}

	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("request_id", requestIDFromContext(c)).Msg(fallback)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": chat.Reason(err)})
}
