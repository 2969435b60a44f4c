package database

import (
	"context"
	"fmt"
	"time"

	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository appends to the payment_audits trail
type PaymentAuditRepository struct {
	db     sqlx.ExtContext
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db sqlx.ExtContext, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new payment audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, payment_id, booking_id, provider_event_id, provider_intent_id,
			event_type, event_source, provider_event,
			amount, currency, payment_status,
			signature_valid, raw_body, details, reason, is_duplicate,
			ip_address, user_agent, request_id,
			processing_time_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19,
			$20, $21
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.PaymentID, audit.BookingID, audit.ProviderEventID, audit.ProviderIntentID,
		audit.EventType, audit.EventSource, audit.ProviderEvent,
		audit.Amount, audit.Currency, audit.PaymentStatus,
		audit.SignatureValid, audit.RawBody, audit.Details, audit.Reason, audit.IsDuplicate,
		audit.IPAddress, audit.UserAgent, audit.RequestID,
		audit.ProcessingTimeMs, audit.CreatedAt,
	)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"payment_id": audit.PaymentID,
		}).Error("Failed to write payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"payment_id": audit.PaymentID,
	}).Debug("Payment audit logged")

	return nil
}

// ListByPayment returns the audit trail of a payment, oldest first
func (r *PaymentAuditRepository) ListByPayment(ctx context.Context, paymentID int64) ([]*models.PaymentAudit, error) {
	audits := []*models.PaymentAudit{}
	query := `
		SELECT id, payment_id, booking_id, provider_event_id, provider_intent_id,
			   event_type, event_source, provider_event,
			   amount, currency, payment_status,
			   signature_valid, raw_body, details, reason, is_duplicate,
			   ip_address, user_agent, request_id,
			   processing_time_ms, created_at
		FROM payment_audits
		WHERE payment_id = $1
		ORDER BY created_at ASC`

	if err := sqlx.SelectContext(ctx, r.db, &audits, query, paymentID); err != nil {
		return nil, fmt.Errorf("failed to get audits by payment: %w", err)
	}
	return audits, nil
}

// CountByProviderEvent reports how many times a provider event id was audited with eventType
func (r *PaymentAuditRepository) CountByProviderEvent(ctx context.Context, providerEventID string, eventType models.PaymentEventType) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM payment_audits
		WHERE provider_event_id = $1 AND event_type = $2`

	if err := sqlx.GetContext(ctx, r.db, &count, query, providerEventID, eventType); err != nil {
		return 0, fmt.Errorf("failed to count audits: %w", err)
	}
	return count, nil
}
