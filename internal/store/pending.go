package store

import (
	"context"
	"time"

	"immortal-nexus-api/internal/models"
	"immortal-nexus-api/internal/wire"

	"gorm.io/gorm/clause"
)

// PersistEvent records an event for a user with no live connection, ordered
// by at (the routing time). Writing the same event id twice for the same
// user is a no-op.
func (s *Store) PersistEvent(ctx context.Context, recipient, eventID string, event wire.Event, at time.Time) error {
	frame, err := wire.Encode(event)
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = s.now()
	}
	row := models.PendingEvent{
		UserID:    recipient,
		EventID:   eventID,
		Kind:      string(event.Kind()),
		Payload:   string(frame),
		CreatedAt: at.UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// PendingEvents returns a user's undelivered events, oldest first.
func (s *Store) PendingEvents(ctx context.Context, userID string, limit int) ([]models.PendingEvent, error) {
	var rows []models.PendingEvent
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND delivered_at IS NULL", userID).
		Order("created_at asc").Order("id asc").
		Limit(clampLimit(limit)).
		Find(&rows).Error
	return rows, err
}

// AckPendingEvents marks the given events of a user as delivered.
func (s *Store) AckPendingEvents(ctx context.Context, userID string, eventIDs []string) (int64, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).Model(&models.PendingEvent{}).
		Where("user_id = ? AND event_id IN ? AND delivered_at IS NULL", userID, eventIDs).
		Update("delivered_at", s.now())
	return result.RowsAffected, result.Error
}
