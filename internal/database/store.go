package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BookingStore persists bookings. Status changes are conditional updates;
// the bool result reports whether a row matched the guard.
type BookingStore interface {
	Create(ctx context.Context, booking *models.Booking) error
	GetByID(ctx context.Context, id int64) (*models.Booking, error)
	List(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, int, error)
	TransitionStatus(ctx context.Context, id int64, from []models.BookingStatus, to models.BookingStatus, msgs models.BookingMessages) (bool, error)
	UpdateDates(ctx context.Context, id int64, checkIn, checkOut time.Time) (bool, error)
	SoftDelete(ctx context.Context, id int64) (bool, error)
}

// RoomStore reads rooms together with the owning boarding house
type RoomStore interface {
	GetByID(ctx context.Context, id int64) (*models.Room, error)
}

// PaymentStore persists payment attempts
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
	GetByProviderIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Payment, error)
	GetLatestForBooking(ctx context.Context, bookingID int64) (*models.Payment, error)
	AttachProviderRefs(ctx context.Context, id int64, refs models.ProviderRefs, status models.PaymentStatus) (bool, error)
	BackfillProviderRefs(ctx context.Context, id int64, refs models.ProviderRefs) error
	TransitionStatus(ctx context.Context, id int64, from []models.PaymentStatus, to models.PaymentStatus) (bool, error)
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*models.Payment, error)
	Touch(ctx context.Context, id int64, at time.Time) error
}

// PayoutStore persists owner payouts
type PayoutStore interface {
	GetPendingByPayment(ctx context.Context, paymentID int64) (*models.Payout, error)
	// CreatePending inserts a PENDING payout, or returns the one that already exists for the payment
	CreatePending(ctx context.Context, ownerID, paymentID int64, amount decimal.Decimal, currency string) (*models.Payout, error)
}

// NotificationStore persists per-user notifications
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, recipient models.Recipient, filter models.NotificationFilter) ([]*models.Notification, int, error)
	GetForRecipient(ctx context.Context, id int64, recipient models.Recipient) (*models.Notification, error)
	MarkAsRead(ctx context.Context, id int64, recipient models.Recipient) (bool, error)
	MarkAllAsRead(ctx context.Context, recipient models.Recipient) (int64, error)
}

// VerificationStore persists verification documents and the account fields derived from them
type VerificationStore interface {
	GetDocument(ctx context.Context, id int64) (*models.VerificationDocument, error)
	ReviewDocument(ctx context.Context, id, adminID int64, status models.VerificationStatus, rejectReason *string) (bool, error)
	SoftDeleteDocument(ctx context.Context, id int64) (bool, error)
	ListDocuments(ctx context.Context, userID int64, role models.UserRole) ([]*models.VerificationDocument, error)
	ApprovedTypes(ctx context.Context, userID int64, role models.UserRole) ([]models.VerificationType, error)
	GetAccount(ctx context.Context, userID int64, role models.UserRole) (*models.Account, error)
	UpdateAccountVerification(ctx context.Context, userID int64, role models.UserRole, level models.VerificationLevel, status models.RegistrationStatus) error
}

// Repositories groups every store bound to the same executor
type Repositories struct {
	Bookings      BookingStore
	Rooms         RoomStore
	Payments      PaymentStore
	Payouts       PayoutStore
	Notifications NotificationStore
	Verification  VerificationStore
}

// NewRepositories binds every store to ext, which is either the pool or a transaction
func NewRepositories(ext sqlx.ExtContext) Repositories {
	return Repositories{
		Bookings:      NewBookingRepository(ext),
		Rooms:         NewRoomRepository(ext),
		Payments:      NewPaymentRepository(ext),
		Payouts:       NewPayoutRepository(ext),
		Notifications: NewNotificationRepository(ext),
		Verification:  NewVerificationRepository(ext),
	}
}

// UnitOfWork runs a callback against transaction-bound repositories
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
}

// SQLUnitOfWork commits when the callback returns nil and rolls back otherwise
type SQLUnitOfWork struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLUnitOfWork creates a unit of work over the pool
func NewSQLUnitOfWork(db *sqlx.DB, logger *logrus.Logger) *SQLUnitOfWork {
	return &SQLUnitOfWork{db: db, logger: logger}
}

// WithinTx implements UnitOfWork
func (u *SQLUnitOfWork) WithinTx(ctx context.Context, fn func(repos Repositories) error) error {
	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(NewRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		u.logger.WithError(err).Error("Failed to commit transaction")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a Postgres unique_violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func bookingStatusArray(statuses []models.BookingStatus) interface{} {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}

func paymentStatusArray(statuses []models.PaymentStatus) interface{} {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}

func affected(res interface{ RowsAffected() (int64, error) }) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}
