package services

import (
	"context"
	"time"

	"flowboard/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NotificationService is the notification sink: it persists in-app
// notifications and pushes them to connected board clients.
type NotificationService struct {
	db     *gorm.DB
	logger *logrus.Logger
	hub    *BoardHub
}

func NewNotificationService(db *gorm.DB, logger *logrus.Logger) *NotificationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationService{db: db, logger: logger}
}

// SetBoardHub injects the websocket hub; without it notifications are only persisted.
func (s *NotificationService) SetBoardHub(hub *BoardHub) {
	s.hub = hub
}

// Notify stores a notification for one user and broadcasts it.
func (s *NotificationService) Notify(ctx context.Context, userID uint, title, message, link string) error {
	n := &models.Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Link:    link,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return err
	}
	if s.hub != nil {
		s.hub.Broadcast(BoardEvent{
			Type:      "notification",
			Data:      n,
			Timestamp: time.Now(),
		})
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uint, unreadOnly bool) ([]models.Notification, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	var notifications []models.Notification
	if err := query.Order("id DESC").Limit(100).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkRead flags one notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	return s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true).Error
}
