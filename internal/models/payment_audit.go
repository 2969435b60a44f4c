package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventWebhookReceived        PaymentEventType = "webhook_received"
	PaymentEventWebhookIgnored         PaymentEventType = "webhook_ignored"
	PaymentEventDuplicateIgnored       PaymentEventType = "duplicate_ignored"
	PaymentEventSuccess                PaymentEventType = "payment_success"
	PaymentEventFailed                 PaymentEventType = "payment_failed"
	PaymentEventRefundCompleted        PaymentEventType = "refund_completed"
	PaymentEventReconciliationMismatch PaymentEventType = "reconciliation_mismatch"
	PaymentEventReconciled             PaymentEventType = "reconciled"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourcePaymongoWebhook PaymentEventSource = "paymongo_webhook"
	PaymentSourcePaymongoAPI     PaymentEventSource = "paymongo_api"
	PaymentSourceAdmin           PaymentEventSource = "admin"
	PaymentSourceReconciler      PaymentEventSource = "reconciler"
)

// PaymentAudit is an append-only record of something that happened to a payment
type PaymentAudit struct {
	ID               uuid.UUID          `json:"id" db:"id"`
	PaymentID        *int64             `json:"payment_id,omitempty" db:"payment_id"`
	BookingID        *int64             `json:"booking_id,omitempty" db:"booking_id"`
	ProviderEventID  *string            `json:"provider_event_id,omitempty" db:"provider_event_id"`
	ProviderIntentID *string            `json:"provider_intent_id,omitempty" db:"provider_intent_id"`
	EventType        PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource      PaymentEventSource `json:"event_source" db:"event_source"`
	ProviderEvent    *string            `json:"provider_event,omitempty" db:"provider_event"`

	Amount        *decimal.Decimal `json:"amount,omitempty" db:"amount"`
	Currency      *string          `json:"currency,omitempty" db:"currency"`
	PaymentStatus *string          `json:"payment_status,omitempty" db:"payment_status"`

	SignatureValid *bool   `json:"signature_valid,omitempty" db:"signature_valid"`
	RawBody        *string `json:"raw_body,omitempty" db:"raw_body"`
	Details        JSONB   `json:"details,omitempty" db:"details"`
	Reason         *string `json:"reason,omitempty" db:"reason"`
	IsDuplicate    bool    `json:"is_duplicate" db:"is_duplicate"`

	IPAddress *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent *string `json:"user_agent,omitempty" db:"user_agent"`
	RequestID *string `json:"request_id,omitempty" db:"request_id"`

	ProcessingTimeMs *int      `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// ForPayment links the audit to a payment and, when set, its booking
func (pa *PaymentAudit) ForPayment(p *Payment) *PaymentAudit {
	if p == nil {
		return pa
	}
	id := p.ID
	pa.PaymentID = &id
	pa.BookingID = p.BookingID
	pa.ProviderIntentID = p.ProviderPaymentIntentID
	amount := p.Amount
	pa.Amount = &amount
	currency := p.Currency
	pa.Currency = &currency
	status := string(p.Status)
	pa.PaymentStatus = &status
	return pa
}

// SetProviderEvent records the provider's event id and name
func (pa *PaymentAudit) SetProviderEvent(eventID, eventName string) *PaymentAudit {
	if eventID != "" {
		pa.ProviderEventID = &eventID
	}
	if eventName != "" {
		pa.ProviderEvent = &eventName
	}
	return pa
}

// SetSignature records whether the delivery carried a valid signature
func (pa *PaymentAudit) SetSignature(valid bool) *PaymentAudit {
	pa.SignatureValid = &valid
	return pa
}

// SetRawBody stores the raw request body before parsing
func (pa *PaymentAudit) SetRawBody(body string) *PaymentAudit {
	pa.RawBody = &body
	return pa
}

// SetReason stores why the event ended the way it did
func (pa *PaymentAudit) SetReason(reason string) *PaymentAudit {
	if reason != "" {
		pa.Reason = &reason
	}
	return pa
}

// SetDetails stores free-form structured context
func (pa *PaymentAudit) SetDetails(details map[string]interface{}) *PaymentAudit {
	pa.Details = JSONB(details)
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent, requestID string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if requestID != "" {
		pa.RequestID = &requestID
	}
	return pa
}

// SetProcessingTime calculates and sets processing time
func (pa *PaymentAudit) SetProcessingTime(startTime time.Time) *PaymentAudit {
	durationMs := int(time.Since(startTime).Milliseconds())
	pa.ProcessingTimeMs = &durationMs
	return pa
}

// MarkAsDuplicate marks this event as a duplicate delivery
func (pa *PaymentAudit) MarkAsDuplicate() *PaymentAudit {
	pa.IsDuplicate = true
	return pa
}
