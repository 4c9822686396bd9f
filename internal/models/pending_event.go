package models

import "time"

// PendingEvent is a real-time event recorded for a user who had no live
// connection when it was routed.
type PendingEvent struct {
	ID          uint       `json:"-" gorm:"primaryKey"`
	UserID      string     `json:"userId" gorm:"column:user_id;not null;uniqueIndex:idx_pending_user_event"`
	EventID     string     `json:"eventId" gorm:"column:event_id;not null;uniqueIndex:idx_pending_user_event"`
	Kind        string     `json:"kind" gorm:"not null"`
	Payload     string     `json:"-" gorm:"type:text;not null"`
	CreatedAt   time.Time  `json:"createdAt" gorm:"index"`
	DeliveredAt *time.Time `json:"-" gorm:"column:delivered_at;index"`
}

// TableName specifies the table name for PendingEvent Model
func (PendingEvent) TableName() string {
	return "pending_events"
}
