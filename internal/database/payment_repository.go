package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const paymentColumns = `
	id, user_id, user_role, owner_id, booking_id, amount, currency,
	purchase_type, provider, status,
	provider_payment_intent_id, provider_payment_link_id, provider_payment_id,
	metadata, paid_at, created_at, updated_at`

// PaymentRepository handles database operations for payments table
type PaymentRepository struct {
	db sqlx.ExtContext
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db sqlx.ExtContext) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment attempt
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (
			user_id, user_role, owner_id, booking_id, amount, currency,
			purchase_type, provider, status, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		payment.UserID, payment.UserRole, payment.OwnerID, payment.BookingID,
		payment.Amount, payment.Currency, payment.PurchaseType, payment.Provider,
		payment.Status, payment.Metadata,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment. Returns nil, nil when not found.
func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT`+paymentColumns+` FROM payments WHERE id = $1`, id)
}

// GetByProviderIntentID resolves a payment from the gateway's payment intent id
func (r *PaymentRepository) GetByProviderIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT`+paymentColumns+` FROM payments WHERE provider_payment_intent_id = $1
		ORDER BY id DESC LIMIT 1`, intentID)
}

// GetByProviderPaymentID resolves a payment from the gateway's payment resource id
func (r *PaymentRepository) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT`+paymentColumns+` FROM payments WHERE provider_payment_id = $1
		ORDER BY id DESC LIMIT 1`, providerPaymentID)
}

// GetLatestForBooking returns the most recent attempt for a booking
func (r *PaymentRepository) GetLatestForBooking(ctx context.Context, bookingID int64) (*models.Payment, error) {
	return r.getOne(ctx, `SELECT`+paymentColumns+` FROM payments WHERE booking_id = $1
		ORDER BY created_at DESC, id DESC LIMIT 1`, bookingID)
}

// AttachProviderRefs stores the identifiers issued by the gateway and moves a
// PENDING payment to status
func (r *PaymentRepository) AttachProviderRefs(ctx context.Context, id int64, refs models.ProviderRefs, status models.PaymentStatus) (bool, error) {
	query := `
		UPDATE payments
		SET provider_payment_intent_id = COALESCE($1, provider_payment_intent_id),
			provider_payment_link_id = COALESCE($2, provider_payment_link_id),
			provider_payment_id = COALESCE($3, provider_payment_id),
			status = $4,
			updated_at = NOW()
		WHERE id = $5 AND status = $6
	`

	res, err := r.db.ExecContext(ctx, query,
		refs.PaymentIntentID, refs.PaymentLinkID, refs.PaymentID,
		status, id, models.PaymentStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to attach provider references: %w", err)
	}
	return affected(res)
}

// BackfillProviderRefs fills in identifiers that are still unset; existing values are kept
func (r *PaymentRepository) BackfillProviderRefs(ctx context.Context, id int64, refs models.ProviderRefs) error {
	if refs.IsEmpty() {
		return nil
	}

	query := `
		UPDATE payments
		SET provider_payment_intent_id = COALESCE(provider_payment_intent_id, $1),
			provider_payment_link_id = COALESCE(provider_payment_link_id, $2),
			provider_payment_id = COALESCE(provider_payment_id, $3),
			updated_at = NOW()
		WHERE id = $4
	`

	if _, err := r.db.ExecContext(ctx, query, refs.PaymentIntentID, refs.PaymentLinkID, refs.PaymentID, id); err != nil {
		return fmt.Errorf("failed to backfill provider references: %w", err)
	}
	return nil
}

// TransitionStatus moves a payment to `to` only if its current status is in `from`
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id int64, from []models.PaymentStatus, to models.PaymentStatus) (bool, error) {
	query := `
		UPDATE payments
		SET status = $1,
			paid_at = CASE WHEN $2 THEN NOW() ELSE paid_at END,
			updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)
	`

	res, err := r.db.ExecContext(ctx, query, to, to == models.PaymentStatusPaid, id, paymentStatusArray(from))
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}
	return affected(res)
}

// ListStale returns REQUIRES_ACTION payments with an intent id last touched before olderThan
func (r *PaymentRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*models.Payment, error) {
	query := `SELECT` + paymentColumns + `
		FROM payments
		WHERE status = $1
		  AND provider_payment_intent_id IS NOT NULL
		  AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`

	payments := []*models.Payment{}
	if err := sqlx.SelectContext(ctx, r.db, &payments, query, models.PaymentStatusRequiresAction, olderThan, limit); err != nil {
		return nil, fmt.Errorf("failed to list stale payments: %w", err)
	}
	return payments, nil
}

// Touch stamps updated_at so a payment the reconciler could not settle leaves the stale set
func (r *PaymentRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE payments SET updated_at = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("failed to touch payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Payment, error) {
	var payment models.Payment
	err := sqlx.GetContext(ctx, r.db, &payment, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

// PayoutRepository handles database operations for payouts table
type PayoutRepository struct {
	db sqlx.ExtContext
}

// NewPayoutRepository creates a new PayoutRepository
func NewPayoutRepository(db sqlx.ExtContext) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// GetPendingByPayment returns the PENDING payout for a payment, or nil, nil
func (r *PayoutRepository) GetPendingByPayment(ctx context.Context, paymentID int64) (*models.Payout, error) {
	var payout models.Payout
	query := `
		SELECT id, owner_id, payment_id, amount, currency, status, created_at, updated_at
		FROM payouts
		WHERE payment_id = $1 AND status = $2
		LIMIT 1
	`

	err := sqlx.GetContext(ctx, r.db, &payout, query, paymentID, models.PayoutStatusPending)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return &payout, nil
}

// CreatePending inserts a PENDING payout. The partial unique index on
// payouts(payment_id) WHERE status = 'PENDING' turns a concurrent duplicate
// into a unique violation, which resolves to the existing row.
// Must run outside a transaction so the follow-up read is possible.
func (r *PayoutRepository) CreatePending(ctx context.Context, ownerID, paymentID int64, amount decimal.Decimal, currency string) (*models.Payout, error) {
	payout := &models.Payout{
		OwnerID:   ownerID,
		PaymentID: paymentID,
		Amount:    amount,
		Currency:  currency,
		Status:    models.PayoutStatusPending,
	}

	query := `
		INSERT INTO payouts (owner_id, payment_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowxContext(ctx, query, ownerID, paymentID, amount, currency, payout.Status).
		Scan(&payout.ID, &payout.CreatedAt, &payout.UpdatedAt)
	if IsUniqueViolation(err) {
		existing, getErr := r.GetPendingByPayment(ctx, paymentID)
		if getErr != nil {
			return nil, getErr
		}
		if existing == nil {
			return nil, fmt.Errorf("payout for payment %d vanished after unique violation", paymentID)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}
	return payout, nil
}
