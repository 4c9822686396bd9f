// Package delivery turns application actions (a message sent, a notification
// raised, a notification read) into stored records plus real-time events.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"immortal-nexus-api/internal/models"
	"immortal-nexus-api/internal/realtime"
	"immortal-nexus-api/internal/store"
	"immortal-nexus-api/internal/wire"

	"go.uber.org/zap"
)

var (
	errMissingStore  = errors.New("store dependency required")
	errMissingRouter = errors.New("router dependency required")

	// ErrInvalidMessage is returned for messages without a recipient or content,
	// or addressed to the sender.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUnknownRecipient is returned when the recipient is not a known user.
	ErrUnknownRecipient = errors.New("unknown recipient")
)

// Store is the persistence the service needs.
type Store interface {
	UserExists(ctx context.Context, userID string) (bool, error)
	CreateMessage(ctx context.Context, senderID, recipientID, content, clientID string) (models.Message, error)
	CreateNotification(ctx context.Context, in store.NotificationInput) (models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

// Router is the event fan-out the service publishes through.
type Router interface {
	Route(ctx context.Context, evt realtime.OutboundEvent) realtime.OutboundEvent
}

// Config wires a Service.
type Config struct {
	Store  Store
	Router Router
	Logger *zap.Logger
}

// Service is shared by the REST handlers and the WebSocket handler.
type Service struct {
	store  Store
	router Router
	logger *zap.Logger
}

// NewService constructs a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Router == nil {
		return nil, errMissingRouter
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: cfg.Store, router: cfg.Router, logger: logger}, nil
}

// MessageRequest is a chat message as submitted by its sender.
type MessageRequest struct {
	SenderID    string
	RecipientID string
	Content     string
	ClientID    string
}

// SendResult reports what happened to a sent message.
type SendResult struct {
	Message         models.Message
	RecipientState  realtime.DeliveryState
	RecipientOnline bool
}

// SendMessage stores a message, pushes it to the recipient's connections and
// echoes it with a delivery receipt to the sender's own connections. The
// stored row is the durable copy; real-time delivery is best-effort.
func (s *Service) SendMessage(ctx context.Context, req MessageRequest) (SendResult, error) {
	if req.RecipientID == "" || req.RecipientID == req.SenderID {
		return SendResult{}, ErrInvalidMessage
	}
	exists, err := s.store.UserExists(ctx, req.RecipientID)
	if err != nil {
		return SendResult{}, err
	}
	if !exists {
		return SendResult{}, ErrUnknownRecipient
	}
	msg, err := s.store.CreateMessage(ctx, req.SenderID, req.RecipientID, req.Content, req.ClientID)
	if errors.Is(err, store.ErrInvalid) {
		return SendResult{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err != nil {
		return SendResult{}, fmt.Errorf("store message: %w", err)
	}

	eventID := "message:" + msg.ID
	event := wire.NewMessage{Message: msg.Wire()}
	toRecipient := s.router.Route(ctx, realtime.OutboundEvent{ID: eventID, Recipient: msg.RecipientID, Event: event})
	online := toRecipient.State == realtime.StateDelivered

	s.router.Route(ctx, realtime.OutboundEvent{ID: eventID, Recipient: msg.SenderID, Event: event, BestEffort: true})
	s.router.Route(ctx, realtime.OutboundEvent{
		ID:        "delivered:" + msg.ID,
		Recipient: msg.SenderID,
		Event: wire.MessageDelivered{
			MessageID:   msg.ID,
			ClientID:    msg.ClientID,
			RecipientID: msg.RecipientID,
			Online:      online,
			DeliveredAt: msg.CreatedAt.UTC(),
		},
		BestEffort: true,
	})

	s.logger.Debug("message sent",
		zap.String("message_id", msg.ID),
		zap.String("sender_id", msg.SenderID),
		zap.String("recipient_id", msg.RecipientID),
		zap.String("state", string(toRecipient.State)),
	)
	return SendResult{Message: msg, RecipientState: toRecipient.State, RecipientOnline: online}, nil
}

// SendTyping forwards a typing signal. Offline recipients never see it.
func (s *Service) SendTyping(ctx context.Context, senderID, recipientID string, typing bool) realtime.DeliveryState {
	if recipientID == "" || recipientID == senderID {
		return realtime.StateDropped
	}
	out := s.router.Route(ctx, realtime.OutboundEvent{
		Recipient: recipientID,
		Event:     wire.Typing{SenderID: senderID, RecipientID: recipientID, IsTyping: typing},
	})
	return out.State
}

// Notify stores a notification and pushes it to its user.
func (s *Service) Notify(ctx context.Context, in store.NotificationInput) (models.Notification, realtime.DeliveryState, error) {
	n, err := s.store.CreateNotification(ctx, in)
	if err != nil {
		return models.Notification{}, "", err
	}
	out := s.router.Route(ctx, realtime.OutboundEvent{
		ID:        "notification:" + n.ID,
		Recipient: n.UserID,
		Event:     wire.NotificationPushed{Notification: n.Wire()},
	})
	return n, out.State, nil
}

// MarkNotificationRead marks one notification read and pushes the new unread
// count to the user's other tabs.
func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID string) (int, error) {
	if err := s.store.MarkNotificationRead(ctx, userID, notificationID); err != nil {
		return 0, err
	}
	return s.publishUnreadCount(ctx, userID)
}

// MarkAllNotificationsRead marks every notification read and pushes the count.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	if _, err := s.store.MarkAllNotificationsRead(ctx, userID); err != nil {
		return 0, err
	}
	return s.publishUnreadCount(ctx, userID)
}

func (s *Service) publishUnreadCount(ctx context.Context, userID string) (int, error) {
	unread, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.router.Route(ctx, realtime.OutboundEvent{
		Recipient:  userID,
		Event:      wire.NotificationCount{Unread: unread},
		BestEffort: true,
	})
	return unread, nil
}
