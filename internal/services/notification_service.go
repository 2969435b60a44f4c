package services

import (
	"context"
	"fmt"

	"github.com/bhhunter/rental-backend/internal/database"
	"github.com/bhhunter/rental-backend/internal/domain"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	defaultNotificationPageSize = 20
	maxNotificationPageSize     = 50
)

// NotificationPusher delivers a stored notification to a connected client.
// Implementations must not block; offline users are a no-op.
type NotificationPusher interface {
	SendToUser(recipient models.Recipient, n *models.Notification) error
}

// NotificationService stores per-user notifications and pushes them in real time
type NotificationService struct {
	store  database.NotificationStore
	pusher NotificationPusher
	logger *logrus.Logger
}

// NewNotificationService creates a new NotificationService. pusher may be nil.
func NewNotificationService(store database.NotificationStore, pusher NotificationPusher, logger *logrus.Logger) *NotificationService {
	return &NotificationService{
		store:  store,
		pusher: pusher,
		logger: logger,
	}
}

// Create persists a notification, then pushes it to the recipient if connected
func (s *NotificationService) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if !n.RecipientRole.IsValid() || n.RecipientID <= 0 {
		return nil, domain.Invalid(domain.CodeInvalidInput, "notification recipient is required")
	}
	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	if s.pusher != nil {
		recipient := models.Recipient{Role: n.RecipientRole, UserID: n.RecipientID}
		if err := s.pusher.SendToUser(recipient, n); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"notification_id": n.ID,
				"recipient_role":  n.RecipientRole,
				"recipient_id":    n.RecipientID,
			}).Warn("Failed to push notification")
		}
	}
	return n, nil
}

// List returns one page of the recipient's notifications, newest first
func (s *NotificationService) List(ctx context.Context, recipient models.Recipient, filter models.NotificationFilter) (*models.NotificationPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultNotificationPageSize
	}
	if filter.Limit > maxNotificationPageSize {
		filter.Limit = maxNotificationPageSize
	}

	items, total, err := s.store.List(ctx, recipient, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	return &models.NotificationPage{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

// GetForRecipient returns one notification owned by the recipient
func (s *NotificationService) GetForRecipient(ctx context.Context, id int64, recipient models.Recipient) (*models.Notification, error) {
	n, err := s.store.GetForRecipient(ctx, id, recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification: %w", err)
	}
	if n == nil {
		return nil, domain.NotFound("notification", domain.CodeNotificationNotFound)
	}
	return n, nil
}

// MarkAsRead marks one notification read. Already-read notifications are returned unchanged.
func (s *NotificationService) MarkAsRead(ctx context.Context, id int64, recipient models.Recipient) (*models.Notification, error) {
	n, err := s.GetForRecipient(ctx, id, recipient)
	if err != nil {
		return nil, err
	}
	if n.IsRead {
		return n, nil
	}

	if _, err := s.store.MarkAsRead(ctx, id, recipient); err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}
	return s.GetForRecipient(ctx, id, recipient)
}

// MarkAllAsRead marks every unread notification of the recipient and returns how many changed
func (s *NotificationService) MarkAllAsRead(ctx context.Context, recipient models.Recipient) (int64, error) {
	n, err := s.store.MarkAllAsRead(ctx, recipient)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return n, nil
}
