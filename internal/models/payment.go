package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the state of a single payment attempt
type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "PENDING"
	PaymentStatusRequiresAction PaymentStatus = "REQUIRES_ACTION"
	PaymentStatusPaid           PaymentStatus = "PAID"
	PaymentStatusFailed         PaymentStatus = "FAILED"
	PaymentStatusRefunded       PaymentStatus = "REFUNDED"
)

// PayableStatuses are the statuses in which a payment can still be settled
var PayableStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusRequiresAction,
}

// IsPayable reports whether the payment can still move to PAID or FAILED
func (s PaymentStatus) IsPayable() bool {
	for _, p := range PayableStatuses {
		if s == p {
			return true
		}
	}
	return false
}

// PurchaseType classifies what a payment is for
type PurchaseType string

const (
	PurchaseTypeBooking      PurchaseType = "BOOKING"
	PurchaseTypeSubscription PurchaseType = "SUBSCRIPTION"
)

// PaymentProvider names the gateway that handled the payment
type PaymentProvider string

const (
	PaymentProviderPaymongo PaymentProvider = "PAYMONGO"
)

// Payment is one attempt to collect funds, usually for a booking
type Payment struct {
	ID           int64           `json:"id" db:"id"`
	UserID       int64           `json:"user_id" db:"user_id"`
	UserRole     UserRole        `json:"user_role" db:"user_role"`
	OwnerID      *int64          `json:"owner_id,omitempty" db:"owner_id"`
	BookingID    *int64          `json:"booking_id,omitempty" db:"booking_id"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Currency     string          `json:"currency" db:"currency"`
	PurchaseType PurchaseType    `json:"purchase_type" db:"purchase_type"`
	Provider     PaymentProvider `json:"provider" db:"provider"`
	Status       PaymentStatus   `json:"status" db:"status"`

	ProviderPaymentIntentID *string `json:"provider_payment_intent_id,omitempty" db:"provider_payment_intent_id"`
	ProviderPaymentLinkID   *string `json:"provider_payment_link_id,omitempty" db:"provider_payment_link_id"`
	ProviderPaymentID       *string `json:"provider_payment_id,omitempty" db:"provider_payment_id"`

	Metadata  JSONB      `json:"metadata,omitempty" db:"metadata"`
	PaidAt    *time.Time `json:"paid_at,omitempty" db:"paid_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// HasProviderReference reports whether the gateway has issued an intent or link for this payment
func (p *Payment) HasProviderReference() bool {
	return p.ProviderPaymentIntentID != nil || p.ProviderPaymentLinkID != nil
}

// ProviderRefs is a partial set of gateway identifiers for a payment
type ProviderRefs struct {
	PaymentIntentID *string
	PaymentLinkID   *string
	PaymentID       *string
}

// IsEmpty reports whether no identifier is set
func (r ProviderRefs) IsEmpty() bool {
	return r.PaymentIntentID == nil && r.PaymentLinkID == nil && r.PaymentID == nil
}

// PaymentHandle is what callers get back instead of the raw gateway object
type PaymentHandle struct {
	PaymentID    int64  `json:"payment_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	CheckoutURL  string `json:"checkout_url,omitempty"`
}

// BookingPaymentSummary describes the latest payment attempt for a booking
type BookingPaymentSummary struct {
	PaymentID               int64         `json:"payment_id"`
	Status                  PaymentStatus `json:"status"`
	ProviderPaymentIntentID *string       `json:"provider_payment_intent_id,omitempty"`
	ProviderPaymentLinkID   *string       `json:"provider_payment_link_id,omitempty"`
	CanRetry                bool          `json:"can_retry"`
}

// RefundPaymentRequest is the admin refund body
type RefundPaymentRequest struct {
	Reason *string `json:"reason,omitempty"`
}
