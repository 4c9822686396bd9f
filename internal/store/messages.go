package store

import (
	"context"
	"fmt"
	"strings"

	"immortal-nexus-api/internal/models"
)

// CreateMessage stores a new direct message, assigning its id and timestamp.
func (s *Store) CreateMessage(ctx context.Context, senderID, recipientID, content, clientID string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if senderID == "" || recipientID == "" || content == "" {
		return models.Message{}, fmt.Errorf("%w: sender, recipient and content are required", ErrInvalid)
	}
	msg := models.Message{
		ID:          s.newID(),
		ClientID:    clientID,
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		CreatedAt:   s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Conversation returns up to limit of the most recent messages exchanged
// between two users, oldest first.
func (s *Store) Conversation(ctx context.Context, userID, partnerID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", userID, partnerID, partnerID, userID).
		Order("created_at desc").Order("id desc").
		Limit(clampLimit(limit)).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkConversationRead flags every message from partnerID to readerID as read.
func (s *Store) MarkConversationRead(ctx context.Context, readerID, partnerID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND recipient_id = ? AND read = ?", partnerID, readerID, false).
		Update("read", true)
	return result.RowsAffected, result.Error
}

// Partners returns the distinct users identity has exchanged messages with.
func (s *Store) Partners(ctx context.Context, identity string) ([]string, error) {
	var sent, received []string
	db := s.db.WithContext(ctx).Model(&models.Message{})
	if err := db.Where("sender_id = ?", identity).Pluck("recipient_id", &sent).Error; err != nil {
		return nil, err
	}
	db = s.db.WithContext(ctx).Model(&models.Message{})
	if err := db.Where("recipient_id = ?", identity).Pluck("sender_id", &received).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(sent)+len(received))
	partners := make([]string, 0, len(sent)+len(received))
	for _, id := range append(sent, received...) {
		if id == identity {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		partners = append(partners, id)
	}
	return partners, nil
}
