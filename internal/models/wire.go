package models

import "immortal-nexus-api/internal/wire"

// Wire converts the stored message into its real-time form.
func (m Message) Wire() wire.Message {
	return wire.Message{
		ID:          m.ID,
		ClientID:    m.ClientID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Content:     m.Content,
		Read:        m.Read,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

// Wire converts the stored notification into its real-time form.
func (n Notification) Wire() wire.Notification {
	return wire.Notification{
		ID:        n.ID,
		UserID:    n.UserID,
		Category:  n.Category,
		Title:     n.Title,
		Body:      n.Body,
		Link:      n.Link,
		Read:      n.Read,
		CreatedAt: n.CreatedAt.UTC(),
	}
}
