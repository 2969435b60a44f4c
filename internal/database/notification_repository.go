package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// NotificationRepository handles database operations for notifications table
type NotificationRepository struct {
	db sqlx.ExtContext
}

// NewNotificationRepository creates a new NotificationRepository
func NewNotificationRepository(db sqlx.ExtContext) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (
			recipient_role, recipient_id, type, title, message,
			entity_type, entity_id, data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, is_read, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		n.RecipientRole, n.RecipientID, n.Type, n.Title, n.Message,
		n.EntityType, n.EntityID, n.Data,
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// List returns one page of a recipient's notifications, newest first, and the total match count
func (r *NotificationRepository) List(ctx context.Context, recipient models.Recipient, filter models.NotificationFilter) ([]*models.Notification, int, error) {
	conditions := []string{"recipient_role = $1", "recipient_id = $2", "is_deleted = FALSE"}
	args := []interface{}{recipient.Role, recipient.UserID}

	if filter.IsRead != nil {
		args = append(args, *filter.IsRead)
		conditions = append(conditions, fmt.Sprintf("is_read = $%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.EntityType != nil {
		args = append(args, *filter.EntityType)
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)))
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, "SELECT COUNT(*) FROM notifications"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	query := `SELECT id, recipient_role, recipient_id, type, title, message,
		entity_type, entity_id, data, is_read, read_at, is_deleted, created_at
		FROM notifications` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	pageArgs := append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	items := []*models.Notification{}
	if err := sqlx.SelectContext(ctx, r.db, &items, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, total, nil
}

// GetForRecipient returns a notification only if it belongs to recipient. Returns nil, nil otherwise.
func (r *NotificationRepository) GetForRecipient(ctx context.Context, id int64, recipient models.Recipient) (*models.Notification, error) {
	var n models.Notification
	query := `
		SELECT id, recipient_role, recipient_id, type, title, message,
			   entity_type, entity_id, data, is_read, read_at, is_deleted, created_at
		FROM notifications
		WHERE id = $1 AND recipient_role = $2 AND recipient_id = $3 AND is_deleted = FALSE
	`

	err := sqlx.GetContext(ctx, r.db, &n, query, id, recipient.Role, recipient.UserID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// MarkAsRead flags a single unread notification as read
func (r *NotificationRepository) MarkAsRead(ctx context.Context, id int64, recipient models.Recipient) (bool, error) {
	query := `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE id = $1 AND recipient_role = $2 AND recipient_id = $3 AND is_read = FALSE AND is_deleted = FALSE
	`

	res, err := r.db.ExecContext(ctx, query, id, recipient.Role, recipient.UserID)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification as read: %w", err)
	}
	return affected(res)
}

// MarkAllAsRead flags every unread notification of recipient as read and returns how many changed
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, recipient models.Recipient) (int64, error) {
	query := `
		UPDATE notifications SET is_read = TRUE, read_at = NOW()
		WHERE recipient_role = $1 AND recipient_id = $2 AND is_read = FALSE AND is_deleted = FALSE
	`

	res, err := r.db.ExecContext(ctx, query, recipient.Role, recipient.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %w", err)
	}
	return res.RowsAffected()
}
