package models

import "time"

// NotificationType groups notifications for client-side filtering
type NotificationType string

const (
	NotificationBookingRequested     NotificationType = "BOOKING_REQUESTED"
	NotificationBookingApproved      NotificationType = "BOOKING_APPROVED"
	NotificationBookingRejected      NotificationType = "BOOKING_REJECTED"
	NotificationBookingCancelled     NotificationType = "BOOKING_CANCELLED"
	NotificationBookingCompleted     NotificationType = "BOOKING_COMPLETED"
	NotificationVerificationApproved NotificationType = "VERIFICATION_APPROVED"
	NotificationVerificationRejected NotificationType = "VERIFICATION_REJECTED"
	NotificationAccountSetup         NotificationType = "ACCOUNT_SETUP_REQUIRED"
	NotificationAccountVerified      NotificationType = "ACCOUNT_FULLY_VERIFIED"
)

// Entity types a notification can point at
const (
	EntityTypeBooking              = "BOOKING"
	EntityTypeVerificationDocument = "VERIFICATION_DOCUMENT"
	EntityTypeAccount              = "ACCOUNT"
)

// Recipient identifies a user in a given role
type Recipient struct {
	Role   UserRole
	UserID int64
}

// Notification is a persisted, per-user message
type Notification struct {
	ID            int64            `json:"id" db:"id"`
	RecipientRole UserRole         `json:"recipient_role" db:"recipient_role"`
	RecipientID   int64            `json:"recipient_id" db:"recipient_id"`
	Type          NotificationType `json:"type" db:"type"`
	Title         string           `json:"title" db:"title"`
	Message       string           `json:"message" db:"message"`
	EntityType    *string          `json:"entity_type,omitempty" db:"entity_type"`
	EntityID      *int64           `json:"entity_id,omitempty" db:"entity_id"`
	Data          JSONB            `json:"data,omitempty" db:"data"`
	IsRead        bool             `json:"is_read" db:"is_read"`
	ReadAt        *time.Time       `json:"read_at,omitempty" db:"read_at"`
	IsDeleted     bool             `json:"-" db:"is_deleted"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}

// NotificationFilter holds the query parameters of GET /notifications
type NotificationFilter struct {
	IsRead     *bool             `form:"is_read"`
	Type       *NotificationType `form:"type"`
	EntityType *string           `form:"entity_type"`
	Page       int               `form:"page"`
	Limit      int               `form:"limit"`
}

// NotificationPage is a paged list of notifications
type NotificationPage struct {
	Items      []*Notification `json:"items"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"total_pages"`
}
