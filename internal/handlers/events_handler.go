package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// MissedEvent is a real-time event recorded while the user was offline.
type MissedEvent struct {
	EventID   string          `json:"eventId"`
	Kind      string          `json:"kind"`
	CreatedAt time.Time       `json:"createdAt"`
	Event     json.RawMessage `json:"event"`
}

// GetMissedEvents handles GET /api/events/missed
// Returns the events recorded while the user had no live connection, oldest
// first, and marks them delivered.
func (h *Handler) GetMissedEvents(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	rows, err := h.store.PendingEvents(ctx, userID, queryLimit(c))
	if err != nil {
		h.logger.Error("failed to load missed events", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch missed events"})
		return
	}

	events := make([]MissedEvent, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		events = append(events, MissedEvent{
			EventID:   row.EventID,
			Kind:      row.Kind,
			CreatedAt: row.CreatedAt,
			Event:     json.RawMessage(row.Payload),
		})
		ids = append(ids, row.EventID)
	}

	if _, err := h.store.AckPendingEvents(ctx, userID, ids); err != nil {
		// the events are returned anyway and stay pending for the next call
		h.logger.Warn("failed to acknowledge missed events", zap.String("user_id", userID), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}
