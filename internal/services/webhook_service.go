package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/bhhunter/rental-backend/internal/database"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/bhhunter/rental-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// Provider event types handled by the ledger
const (
	EventPaymentPaid            = "payment.paid"
	EventPaymentFailed          = "payment.failed"
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

// WebhookOutcome is what happened to one delivery
type WebhookOutcome string

const (
	WebhookProcessed WebhookOutcome = "processed"
	WebhookIgnored   WebhookOutcome = "ignored"
	WebhookDuplicate WebhookOutcome = "duplicate"
)

// Reasons attached to ignored deliveries
const (
	ReasonInvalidSignature   = "invalid_signature"
	ReasonMalformedPayload   = "malformed_payload"
	ReasonPaymentNotFound    = "payment_not_found"
	ReasonUnhandledEvent     = "unhandled_event"
	ReasonAlreadyPaid        = "already_paid"
	ReasonAlreadySettled     = "already_settled"
	ReasonBookingNotAwaiting = "booking_not_awaiting_payment"
	ReasonProcessingError    = "processing_error"
)

// WebhookMeta is request context captured for the audit trail
type WebhookMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// IngestResult is the body returned to the provider. It is always answered with 200.
type IngestResult struct {
	Outcome   WebhookOutcome `json:"outcome"`
	Reason    string         `json:"reason,omitempty"`
	EventType string         `json:"event_type,omitempty"`
	PaymentID int64          `json:"payment_id,omitempty"`
}

// PaymentSettler applies a provider outcome to the ledger
type PaymentSettler interface {
	MarkPaid(ctx context.Context, payment *models.Payment, source models.PaymentEventSource) (SettlementOutcome, error)
	MarkFailed(ctx context.Context, payment *models.Payment, source models.PaymentEventSource, reason string) (SettlementOutcome, error)
}

// webhookEnvelope is the subset of a PayMongo event delivery we read
type webhookEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Type     string `json:"type"`
			Livemode bool   `json:"livemode"`
			Data     *struct {
				ID         string `json:"id"`
				Type       string `json:"type"`
				Attributes struct {
					PaymentIntentID string                 `json:"payment_intent_id"`
					Metadata        map[string]interface{} `json:"metadata"`
					Status          string                 `json:"status"`
					FailedMessage   string                 `json:"failed_message"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// WebhookService ingests provider webhook deliveries
type WebhookService struct {
	payments database.PaymentStore
	settler  PaymentSettler
	verifier SignatureVerifier
	audits   PaymentAuditStore
	logger   *logrus.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(
	payments database.PaymentStore,
	settler PaymentSettler,
	verifier SignatureVerifier,
	audits PaymentAuditStore,
	logger *logrus.Logger,
) *WebhookService {
	return &WebhookService{
		payments: payments,
		settler:  settler,
		verifier: verifier,
		audits:   audits,
		logger:   logger,
	}
}

// Ingest verifies, resolves and applies one delivery.
// An error is returned only when the verifier itself is misconfigured; every
// other problem is reported through the result so the provider stops retrying.
func (s *WebhookService) Ingest(ctx context.Context, rawBody []byte, signatureHeader string, meta WebhookMeta) (*IngestResult, error) {
	start := time.Now()
	received := models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourcePaymongoWebhook).
		SetRawBody(string(rawBody)).
		SetMetadata(meta.IPAddress, meta.UserAgent, meta.RequestID).
		SetDetails(map[string]interface{}{"client": utils.ParseUserAgent(meta.UserAgent).Map()})

	valid, err := s.verifier.Verify(rawBody, signatureHeader)
	if err != nil {
		s.logger.WithError(err).Error("Webhook verifier misconfigured")
		s.audit(ctx, received.SetSignature(false).SetReason("verifier_misconfigured").SetProcessingTime(start))
		return nil, err
	}
	received.SetSignature(valid)

	if !valid {
		s.logger.WithField("ip", meta.IPAddress).Warn("Webhook signature invalid")
		s.audit(ctx, received.SetProcessingTime(start))
		return s.ignore(ctx, start, meta, nil, "", ReasonInvalidSignature), nil
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil ||
		envelope.Data.Attributes.Type == "" || envelope.Data.Attributes.Data == nil {
		s.logger.Warn("Webhook ignored: malformed payload")
		s.audit(ctx, received.SetProcessingTime(start))
		return s.ignore(ctx, start, meta, nil, "", ReasonMalformedPayload), nil
	}

	eventID := envelope.Data.ID
	eventType := envelope.Data.Attributes.Type
	resource := envelope.Data.Attributes.Data
	received.SetProviderEvent(eventID, eventType)
	if s.seenBefore(ctx, eventID) {
		received.MarkAsDuplicate()
	}

	logger := s.logger.WithFields(logrus.Fields{
		"event_id":   eventID,
		"event_type": eventType,
	})

	payment, err := s.resolvePayment(ctx, resource.ID, resource.Attributes.PaymentIntentID, resource.Attributes.Metadata)
	if err != nil {
		logger.WithError(err).Error("Failed to resolve payment for webhook")
		s.audit(ctx, received.SetProcessingTime(start))
		return s.ignore(ctx, start, meta, nil, eventType, ReasonProcessingError), nil
	}
	if payment == nil {
		logger.WithFields(logrus.Fields{
			"metadata":          resource.Attributes.Metadata,
			"payment_intent_id": resource.Attributes.PaymentIntentID,
		}).Info("Webhook ignored: payment not found for metadata or intent")
		s.audit(ctx, received.SetProcessingTime(start))
		return s.ignore(ctx, start, meta, nil, eventType, ReasonPaymentNotFound), nil
	}
	received.ForPayment(payment)
	s.audit(ctx, received.SetProcessingTime(start))
	logger = logger.WithField("payment_id", payment.ID)

	s.backfill(ctx, payment, resource.ID, resource.Type, resource.Attributes.PaymentIntentID)

	if payment.Status == models.PaymentStatusPaid {
		logger.Info("Webhook ignored: payment already paid")
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventDuplicateIgnored, models.PaymentSourcePaymongoWebhook).
			ForPayment(payment).
			SetProviderEvent(eventID, eventType).
			SetMetadata(meta.IPAddress, meta.UserAgent, meta.RequestID).
			SetReason(ReasonAlreadyPaid).
			MarkAsDuplicate().
			SetProcessingTime(start))
		return &IngestResult{Outcome: WebhookDuplicate, Reason: ReasonAlreadyPaid, EventType: eventType, PaymentID: payment.ID}, nil
	}

	var outcome SettlementOutcome
	switch eventType {
	case EventPaymentPaid, EventPaymentIntentSucceeded:
		outcome, err = s.settler.MarkPaid(ctx, payment, models.PaymentSourcePaymongoWebhook)
	case EventPaymentFailed, EventPaymentIntentFailed:
		outcome, err = s.settler.MarkFailed(ctx, payment, models.PaymentSourcePaymongoWebhook, resource.Attributes.FailedMessage)
	default:
		logger.Info("Webhook ignored: unhandled event type")
		return s.ignore(ctx, start, meta, payment, eventType, ReasonUnhandledEvent), nil
	}
	if err != nil {
		logger.WithError(err).Error("Failed to apply webhook to ledger")
		return s.ignore(ctx, start, meta, payment, eventType, ReasonProcessingError), nil
	}

	switch outcome {
	case SettlementAlreadySettled:
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventDuplicateIgnored, models.PaymentSourcePaymongoWebhook).
			ForPayment(payment).
			SetProviderEvent(eventID, eventType).
			SetReason(ReasonAlreadySettled).
			MarkAsDuplicate().
			SetProcessingTime(start))
		return &IngestResult{Outcome: WebhookDuplicate, Reason: ReasonAlreadySettled, EventType: eventType, PaymentID: payment.ID}, nil
	case SettlementBookingMismatch:
		return &IngestResult{Outcome: WebhookIgnored, Reason: ReasonBookingNotAwaiting, EventType: eventType, PaymentID: payment.ID}, nil
	}

	logger.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Webhook processed")
	return &IngestResult{Outcome: WebhookProcessed, EventType: eventType, PaymentID: payment.ID}, nil
}

// resolvePayment tries metadata.paymentId, then the intent id, then the provider payment id
func (s *WebhookService) resolvePayment(ctx context.Context, resourceID, intentID string, metadata map[string]interface{}) (*models.Payment, error) {
	if id, ok := metadataPaymentID(metadata); ok {
		payment, err := s.payments.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}

	if intentID != "" {
		payment, err := s.payments.GetByProviderIntentID(ctx, intentID)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}

	if resourceID != "" {
		return s.payments.GetByProviderPaymentID(ctx, resourceID)
	}
	return nil, nil
}

// backfill stores provider ids the payment does not have yet
func (s *WebhookService) backfill(ctx context.Context, payment *models.Payment, resourceID, resourceType, intentID string) {
	var refs models.ProviderRefs
	if intentID != "" && payment.ProviderPaymentIntentID == nil {
		refs.PaymentIntentID = &intentID
	}
	if resourceType == "payment" && resourceID != "" && payment.ProviderPaymentID == nil {
		refs.PaymentID = &resourceID
	}
	if refs.IsEmpty() {
		return
	}

	if err := s.payments.BackfillProviderRefs(ctx, payment.ID, refs); err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.ID).Warn("Failed to backfill provider references")
		return
	}
	if refs.PaymentIntentID != nil {
		payment.ProviderPaymentIntentID = refs.PaymentIntentID
	}
	if refs.PaymentID != nil {
		payment.ProviderPaymentID = refs.PaymentID
	}
}

func (s *WebhookService) seenBefore(ctx context.Context, eventID string) bool {
	if eventID == "" || s.audits == nil {
		return false
	}
	n, err := s.audits.CountByProviderEvent(ctx, eventID, models.PaymentEventWebhookReceived)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to check webhook delivery history")
		return false
	}
	return n > 0
}

func (s *WebhookService) ignore(ctx context.Context, start time.Time, meta WebhookMeta, payment *models.Payment, eventType, reason string) *IngestResult {
	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventWebhookIgnored, models.PaymentSourcePaymongoWebhook).
		ForPayment(payment).
		SetProviderEvent("", eventType).
		SetMetadata(meta.IPAddress, meta.UserAgent, meta.RequestID).
		SetReason(reason).
		SetProcessingTime(start))

	result := &IngestResult{Outcome: WebhookIgnored, Reason: reason, EventType: eventType}
	if payment != nil {
		result.PaymentID = payment.ID
	}
	return result
}

func (s *WebhookService) audit(ctx context.Context, entry *models.PaymentAudit) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("event_type", entry.EventType).Error("Failed to write payment audit")
	}
}

// metadataPaymentID reads metadata.paymentId, which arrives as a string or a number
func metadataPaymentID(metadata map[string]interface{}) (int64, bool) {
	raw, ok := metadata["paymentId"]
	if !ok || raw == nil {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), v > 0
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		return id, err == nil && id > 0
	case json.Number:
		id, err := v.Int64()
		return id, err == nil && id > 0
	default:
		return 0, false
	}
}
