package handlers

import (
	"errors"
	"net/http"

	"immortal-nexus-api/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CreateNotificationRequest represents the request payload for raising a
// notification for a user
type CreateNotificationRequest struct {
	UserID   string `json:"userId" binding:"required"`
	Category string `json:"category"`
	Title    string `json:"title" binding:"required"`
	Body     string `json:"body"`
	Link     string `json:"link"`
}

// GetNotifications handles GET /api/notifications
// Returns the newest notifications first along with the unread count.
func (h *Handler) GetNotifications(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	items, err := h.store.ListNotifications(ctx, userID, queryLimit(c))
	if err != nil {
		h.logger.Error("failed to list notifications", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}
	unread, err := h.store.UnreadCount(ctx, userID)
	if err != nil {
		h.logger.Error("failed to count notifications", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": items,
		"count":         len(items),
		"unreadCount":   unread,
	})
}

// CreateNotification handles POST /api/notifications
func (h *Handler) CreateNotification(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}

	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	exists, err := h.store.UserExists(ctx, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate userId"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	n, state, err := h.service.Notify(ctx, store.NotificationInput{
		UserID:   req.UserID,
		Category: req.Category,
		Title:    req.Title,
		Body:     req.Body,
		Link:     req.Link,
	})
	if err != nil {
		h.logger.Error("failed to create notification", zap.String("user_id", req.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create notification"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"notification": n,
		"delivery":     state,
	})
}

// MarkNotificationRead handles PATCH /api/notifications/:id/read
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	unread, err := h.service.MarkNotificationRead(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		h.logger.Error("failed to mark notification read", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreadCount": unread})
}

// MarkAllNotificationsRead handles PATCH /api/notifications/read-all
func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	unread, err := h.service.MarkAllNotificationsRead(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to mark notifications read", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unreadCount": unread})
}
