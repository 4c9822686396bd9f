package handlers

import (
	"errors"
	"net/http"

	"immortal-nexus-api/internal/delivery"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SendMessageRequest represents the request payload for sending a message
type SendMessageRequest struct {
	RecipientID string `json:"recipientId" binding:"required"`
	Content     string `json:"content" binding:"required"`
	ClientID    string `json:"clientId"`
}

// SendMessage handles POST /api/messages
// Stores the message and pushes it to the recipient when online.
func (h *Handler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	res, err := h.service.SendMessage(c.Request.Context(), delivery.MessageRequest{
		SenderID:    userID,
		RecipientID: req.RecipientID,
		Content:     req.Content,
		ClientID:    req.ClientID,
	})
	switch {
	case errors.Is(err, delivery.ErrUnknownRecipient):
		c.JSON(http.StatusNotFound, gin.H{"error": "Recipient not found"})
		return
	case errors.Is(err, delivery.ErrInvalidMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message"})
		return
	case err != nil:
		h.logger.Error("failed to send message", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":         res.Message,
		"delivery":        res.RecipientState,
		"recipientOnline": res.RecipientOnline,
	})
}

// GetConversation handles GET /api/messages/:userId
// Returns the most recent messages with that user, oldest first.
func (h *Handler) GetConversation(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	partnerID := c.Param("userId")

	msgs, err := h.store.Conversation(c.Request.Context(), userID, partnerID, queryLimit(c))
	if err != nil {
		h.logger.Error("failed to load conversation", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"count":    len(msgs),
	})
}

// MarkConversationRead handles PATCH /api/messages/:userId/read
func (h *Handler) MarkConversationRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	updated, err := h.store.MarkConversationRead(c.Request.Context(), userID, c.Param("userId"))
	if err != nil {
		h.logger.Error("failed to mark conversation read", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
