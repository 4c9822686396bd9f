package models

import "time"

// Notification is created as a side effect of activity elsewhere on the site
// (replies, votes, mentions) and shown to a single user.
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"userId" gorm:"column:user_id;not null;index"`
	Category  string    `json:"category"`
	Title     string    `json:"title" gorm:"not null"`
	Body      string    `json:"body"`
	Link      string    `json:"link"`
	Read      bool      `json:"read" gorm:"not null;default:false;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"`
}

// TableName specifies the table name for Notification Model
func (Notification) TableName() string {
	return "notifications"
}
