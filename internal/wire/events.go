// Package wire defines the real-time events exchanged between the server and
// connected clients, and their JSON envelope encoding.
//
// Every frame is a JSON object carrying a "type" discriminator followed by the
// kind-specific fields:
//
//	{"type": "newMessage", "message": {...}}
package wire

import "time"

// Kind is the envelope discriminator.
type Kind string

const (
	KindConnection        Kind = "connection"
	KindNewMessage        Kind = "newMessage"
	KindMessageDelivered  Kind = "messageDelivered"
	KindTyping            Kind = "typing"
	KindUserStatus        Kind = "userStatus"
	KindNotification      Kind = "notification"
	KindNotificationCount Kind = "notificationCount"
)

// Event is the closed set of real-time events. Only types in this package
// implement it.
type Event interface {
	Kind() Kind
	sealed()
}

// Message is a chat message as stored by the server.
type Message struct {
	ID          string    `json:"id,omitempty"`
	ClientID    string    `json:"clientId,omitempty"`
	SenderID    string    `json:"senderId,omitempty"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Notification is a user-facing notification as stored by the server.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Category  string    `json:"category,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	Link      string    `json:"link,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConnectionAck is the first frame sent by the server on an authenticated socket.
type ConnectionAck struct {
	UserID       string    `json:"userId"`
	ConnectionID string    `json:"connectionId"`
	ServerTime   time.Time `json:"serverTime"`
}

// NewMessage carries a chat message. Clients send it with RecipientID,
// Content and optionally ClientID set; the server fills in the rest.
type NewMessage struct {
	Message Message `json:"message"`
}

// MessageDelivered confirms to the sender that a message was accepted.
type MessageDelivered struct {
	MessageID   string    `json:"messageId"`
	ClientID    string    `json:"clientId,omitempty"`
	RecipientID string    `json:"recipientId"`
	Online      bool      `json:"recipientOnline"`
	DeliveredAt time.Time `json:"deliveredAt"`
}

// Typing signals that SenderID started or stopped typing to RecipientID.
type Typing struct {
	SenderID    string `json:"senderId,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
	IsTyping    bool   `json:"isTyping"`
}

// UserStatus is a presence change.
type UserStatus struct {
	UserID   string    `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// NotificationPushed delivers a newly created notification.
type NotificationPushed struct {
	Notification Notification `json:"notification"`
}

// NotificationCount carries the authoritative unread count.
type NotificationCount struct {
	Unread int `json:"unreadCount"`
}

func (ConnectionAck) Kind() Kind      { return KindConnection }
func (NewMessage) Kind() Kind         { return KindNewMessage }
func (MessageDelivered) Kind() Kind   { return KindMessageDelivered }
func (Typing) Kind() Kind             { return KindTyping }
func (UserStatus) Kind() Kind         { return KindUserStatus }
func (NotificationPushed) Kind() Kind { return KindNotification }
func (NotificationCount) Kind() Kind  { return KindNotificationCount }

func (ConnectionAck) sealed()      {}
func (NewMessage) sealed()         {}
func (MessageDelivered) sealed()   {}
func (Typing) sealed()             {}
func (UserStatus) sealed()         {}
func (NotificationPushed) sealed() {}
func (NotificationCount) sealed()  {}
