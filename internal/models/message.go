package models

import "time"

// Message is a direct message between two users.
type Message struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	ClientID    string    `json:"clientId,omitempty" gorm:"column:client_id"`
	SenderID    string    `json:"senderId" gorm:"column:sender_id;not null;index:idx_messages_pair"`
	RecipientID string    `json:"recipientId" gorm:"column:recipient_id;not null;index:idx_messages_pair"`
	Content     string    `json:"content" gorm:"not null"`
	Read        bool      `json:"read" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"createdAt" gorm:"index"`
}

// TableName specifies the table name for Message Model
func (Message) TableName() string {
	return "messages"
}
