package store

import (
	"context"
	"fmt"
	"strings"

	"immortal-nexus-api/internal/models"
)

// NotificationInput is the caller-supplied part of a notification.
type NotificationInput struct {
	UserID   string
	Category string
	Title    string
	Body     string
	Link     string
}

// CreateNotification stores an unread notification.
func (s *Store) CreateNotification(ctx context.Context, in NotificationInput) (models.Notification, error) {
	if in.UserID == "" || strings.TrimSpace(in.Title) == "" {
		return models.Notification{}, fmt.Errorf("%w: user and title are required", ErrInvalid)
	}
	n := models.Notification{
		ID:        s.newID(),
		UserID:    in.UserID,
		Category:  in.Category,
		Title:     strings.TrimSpace(in.Title),
		Body:      in.Body,
		Link:      in.Link,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&n).Error; err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// ListNotifications returns a user's notifications, most recent first.
func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var list []models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").Order("id desc").
		Limit(clampLimit(limit)).
		Find(&list).Error
	return list, err
}

// UnreadCount returns how many of a user's notifications are unread.
func (s *Store) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	return int(count), err
}

// MarkNotificationRead flags one of the user's notifications as read.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ? AND user_id = ?", notificationID, userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// MarkAllNotificationsRead flags every notification of the user as read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return result.RowsAffected, result.Error
}
