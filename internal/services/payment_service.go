package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/bhhunter/rental-backend/internal/database"
	"github.com/bhhunter/rental-backend/internal/domain"
	"github.com/bhhunter/rental-backend/internal/events"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentAuditStore appends to and queries the payment audit trail
type PaymentAuditStore interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
	CountByProviderEvent(ctx context.Context, providerEventID string, eventType models.PaymentEventType) (int, error)
}

// SettlementOutcome reports what MarkPaid or MarkFailed did
type SettlementOutcome string

const (
	// SettlementApplied means the payment (and its booking) moved
	SettlementApplied SettlementOutcome = "applied"
	// SettlementAlreadySettled means the payment had left the payable set already
	SettlementAlreadySettled SettlementOutcome = "already_settled"
	// SettlementBookingMismatch means the booking was not awaiting payment and nothing was written
	SettlementBookingMismatch SettlementOutcome = "booking_mismatch"
)

var (
	errAlreadySettled     = errors.New("payment already settled")
	errBookingNotAwaiting = errors.New("booking not awaiting payment")
)

// PaymentService is the payment ledger: it owns payment attempts and their settlement
type PaymentService struct {
	repos    database.Repositories
	uow      database.UnitOfWork
	gateway  PaymentGateway
	audits   PaymentAuditStore
	bus      *events.Bus
	logger   *logrus.Logger
	currency string
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	repos database.Repositories,
	uow database.UnitOfWork,
	gateway PaymentGateway,
	audits PaymentAuditStore,
	bus *events.Bus,
	logger *logrus.Logger,
	currency string,
) *PaymentService {
	return &PaymentService{
		repos:    repos,
		uow:      uow,
		gateway:  gateway,
		audits:   audits,
		bus:      bus,
		logger:   logger,
		currency: currency,
	}
}

// ============================================================================
// OPENING PAYMENT ATTEMPTS
// ============================================================================

// CreateBookingPayment opens a payment intent for a booking that is awaiting payment
func (s *PaymentService) CreateBookingPayment(ctx context.Context, bookingID, tenantID int64, amount decimal.Decimal, currency string) (*models.PaymentHandle, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusAwaitingPayment {
		return nil, domain.Invalid(domain.CodeBookingNotAwaiting, "booking is not awaiting payment")
	}

	payment, err := s.openPayment(ctx, booking, tenantID, amount, currency)
	if err != nil {
		return nil, err
	}
	return s.issueIntent(ctx, payment)
}

// CreateCheckoutLink opens a hosted checkout link for the tenant of a booking that is awaiting payment.
// When the booking already has a live attempt the link is attached to it, so a booking never
// has two payable attempts at once.
func (s *PaymentService) CreateCheckoutLink(ctx context.Context, bookingID int64, actor models.Actor) (*models.PaymentHandle, error) {
	booking, err := s.bookingForTenant(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusAwaitingPayment {
		return nil, domain.Invalid(domain.CodeBookingNotAwaiting, "booking is not awaiting payment")
	}

	latest, err := s.repos.Payments.GetLatestForBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest payment: %w", err)
	}
	if latest != nil && latest.Status.IsPayable() {
		return s.linkLiveAttempt(ctx, latest)
	}

	payment, err := s.openPayment(ctx, booking, booking.TenantID, booking.RoomPrice, "")
	if err != nil {
		return nil, err
	}

	link, err := s.gateway.CreatePaymentLink(ctx, payment)
	if err != nil {
		s.abandonPayment(ctx, payment)
		return nil, gatewayFailure("failed to create payment link", err)
	}

	refs := models.ProviderRefs{PaymentLinkID: &link.ID}
	if link.PaymentIntentID != "" {
		refs.PaymentIntentID = &link.PaymentIntentID
	}
	if err := s.attach(ctx, payment, refs); err != nil {
		return nil, err
	}

	return &models.PaymentHandle{PaymentID: payment.ID, CheckoutURL: link.CheckoutURL}, nil
}

// RetryPayment opens a fresh attempt after the latest one FAILED
func (s *PaymentService) RetryPayment(ctx context.Context, bookingID int64, actor models.Actor) (*models.PaymentHandle, error) {
	booking, err := s.bookingForTenant(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return nil, domain.Invalid(domain.CodeBookingTerminal, "booking can no longer be paid")
	}
	if booking.Status == models.BookingStatusPendingRequest {
		return nil, domain.Invalid(domain.CodeBookingNotAwaiting, "booking has not been approved yet")
	}

	latest, err := s.repos.Payments.GetLatestForBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest payment: %w", err)
	}
	// approval can fail before any attempt was stored; the retry then starts from the room price
	tenantID, amount, currency := booking.TenantID, booking.RoomPrice, s.currency
	if latest != nil {
		if latest.Status.IsPayable() {
			return nil, domain.Invalid(domain.CodePaymentStillPayable, "the latest payment attempt can still be completed")
		}
		if latest.Status != models.PaymentStatusFailed {
			return nil, domain.Invalid(domain.CodePaymentNotRetryable, "only failed payments can be retried")
		}
		tenantID, amount, currency = latest.UserID, latest.Amount, latest.Currency
	}

	if booking.Status == models.BookingStatusPaymentFailed {
		ok, err := s.repos.Bookings.TransitionStatus(ctx, bookingID,
			[]models.BookingStatus{models.BookingStatusPaymentFailed},
			models.BookingStatusAwaitingPayment, models.BookingMessages{})
		if err != nil {
			return nil, fmt.Errorf("failed to reopen booking for payment: %w", err)
		}
		if !ok {
			return nil, domain.Conflict("booking", domain.CodeStatusChanged, "booking status changed before retry")
		}
		booking.Status = models.BookingStatusAwaitingPayment
	}

	var handle *models.PaymentHandle
	payment, err := s.openPayment(ctx, booking, tenantID, amount, currency)
	if err == nil {
		handle, err = s.issueIntent(ctx, payment)
	}
	if err != nil {
		if _, markErr := markBookingPaymentFailed(ctx, s.repos.Bookings, bookingID); markErr != nil {
			s.logger.WithError(markErr).WithField("booking_id", bookingID).Error("Failed to mark booking payment as failed after retry")
		}
		return nil, err
	}

	fields := logrus.Fields{"booking_id": bookingID, "payment_id": handle.PaymentID}
	if latest != nil {
		fields["previous_payment"] = latest.ID
	}
	s.logger.WithFields(fields).Info("Payment retry opened")
	return handle, nil
}

// ============================================================================
// QUERIES
// ============================================================================

// GetBookingPayment summarizes the latest payment attempt of a booking the actor can see
func (s *PaymentService) GetBookingPayment(ctx context.Context, bookingID int64, actor models.Actor) (*models.BookingPaymentSummary, error) {
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin {
		if err := authorizeBookingActor(booking, actor); err != nil {
			return nil, err
		}
	}

	latest, err := s.repos.Payments.GetLatestForBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest payment: %w", err)
	}
	if latest == nil {
		return nil, domain.NotFound("payment", domain.CodePaymentNotFound)
	}
	if !latest.HasProviderReference() {
		return nil, domain.Internal(domain.CodePaymentMissingRef, "payment has no provider reference", nil)
	}

	return &models.BookingPaymentSummary{
		PaymentID:               latest.ID,
		Status:                  latest.Status,
		ProviderPaymentIntentID: latest.ProviderPaymentIntentID,
		ProviderPaymentLinkID:   latest.ProviderPaymentLinkID,
		CanRetry:                latest.Status == models.PaymentStatusFailed && !booking.Status.IsTerminal(),
	}, nil
}

// GetPayment returns a payment visible to the actor: its payer, the owner it pays, or an admin
func (s *PaymentService) GetPayment(ctx context.Context, paymentID int64, actor models.Actor) (*models.Payment, error) {
	payment, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleAdmin:
		return payment, nil
	case models.RoleTenant:
		if payment.UserID == actor.UserID {
			return payment, nil
		}
	case models.RoleOwner:
		if payment.OwnerID != nil && *payment.OwnerID == actor.UserID {
			return payment, nil
		}
	}
	return nil, domain.Forbidden(domain.CodeNotPaymentParty, "you are not a party to this payment")
}

// ============================================================================
// SETTLEMENT
// ============================================================================

// MarkPaid settles a payable payment as PAID and completes its booking in one transaction.
// The booking must be AWAITING_PAYMENT or PAYMENT_FAILED or nothing is written.
func (s *PaymentService) MarkPaid(ctx context.Context, payment *models.Payment, source models.PaymentEventSource) (SettlementOutcome, error) {
	logger := s.logger.WithFields(logrus.Fields{"payment_id": payment.ID, "source": source})
	if !payment.Status.IsPayable() {
		return SettlementAlreadySettled, nil
	}

	var completed *models.Booking
	err := s.uow.WithinTx(ctx, func(repos database.Repositories) error {
		ok, err := repos.Payments.TransitionStatus(ctx, payment.ID, models.PayableStatuses, models.PaymentStatusPaid)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadySettled
		}
		if payment.BookingID == nil {
			return nil
		}

		moved, err := markBookingCompleted(ctx, repos.Bookings, *payment.BookingID)
		if err != nil {
			return err
		}
		if !moved {
			return errBookingNotAwaiting
		}
		completed, err = repos.Bookings.GetByID(ctx, *payment.BookingID)
		return err
	})

	switch {
	case errors.Is(err, errAlreadySettled):
		logger.Info("Payment already settled, nothing to mark paid")
		return SettlementAlreadySettled, nil
	case errors.Is(err, errBookingNotAwaiting):
		logger.WithField("booking_id", *payment.BookingID).Warn("Paid event for a booking that is not awaiting payment")
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventReconciliationMismatch, source).
			ForPayment(payment).
			SetReason("booking_not_awaiting_payment"))
		return SettlementBookingMismatch, nil
	case err != nil:
		return "", fmt.Errorf("failed to mark payment paid: %w", err)
	}

	payment.Status = models.PaymentStatusPaid
	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventSuccess, source).ForPayment(payment))
	logger.Info("Payment marked as paid")

	if completed != nil {
		events.Publish(ctx, s.bus, events.BookingCompleted{
			BookingRef: events.RefFromBooking(completed),
			PaymentID:  payment.ID,
		})
	}
	return SettlementApplied, nil
}

// MarkFailed settles a payable payment as FAILED. The booking moves from AWAITING_PAYMENT to
// PAYMENT_FAILED only when the payment is its latest attempt.
func (s *PaymentService) MarkFailed(ctx context.Context, payment *models.Payment, source models.PaymentEventSource, reason string) (SettlementOutcome, error) {
	if !payment.Status.IsPayable() {
		return SettlementAlreadySettled, nil
	}

	superseded := false
	err := s.uow.WithinTx(ctx, func(repos database.Repositories) error {
		ok, err := repos.Payments.TransitionStatus(ctx, payment.ID, models.PayableStatuses, models.PaymentStatusFailed)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadySettled
		}
		if payment.BookingID == nil {
			return nil
		}

		latest, err := repos.Payments.GetLatestForBooking(ctx, *payment.BookingID)
		if err != nil {
			return err
		}
		if latest != nil && latest.ID != payment.ID {
			superseded = true
			return nil
		}
		_, err = markBookingPaymentFailed(ctx, repos.Bookings, *payment.BookingID)
		return err
	})
	if errors.Is(err, errAlreadySettled) {
		return SettlementAlreadySettled, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to mark payment failed: %w", err)
	}

	payment.Status = models.PaymentStatusFailed
	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventFailed, source).
		ForPayment(payment).
		SetReason(reason))
	s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"source":     source,
		"reason":     reason,
		"superseded": superseded,
	}).Warn("Payment marked as failed")
	return SettlementApplied, nil
}

// ============================================================================
// ADMIN OPERATIONS
// ============================================================================

// CreatePayout records a PENDING payout to the owner of a PAID payment.
// Calling it again returns the existing payout.
func (s *PaymentService) CreatePayout(ctx context.Context, paymentID int64) (*models.Payout, error) {
	payment, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPaid {
		return nil, domain.Invalid(domain.CodePaymentNotPaid, "only paid payments can be paid out")
	}
	if payment.OwnerID == nil {
		return nil, domain.Invalid(domain.CodePaymentMissingOwner, "payment has no owner to pay out")
	}

	existing, err := s.repos.Payouts.GetPendingByPayment(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payout: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	payout, err := s.repos.Payouts.CreatePending(ctx, *payment.OwnerID, paymentID, payment.Amount, payment.Currency)
	if err != nil {
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"payout_id":  payout.ID,
		"owner_id":   *payment.OwnerID,
	}).Info("Payout created")
	return payout, nil
}

// Refund refunds a PAID payment through the gateway, then marks it REFUNDED
func (s *PaymentService) Refund(ctx context.Context, paymentID, adminID int64, reason *string) (*models.Payment, error) {
	payment, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPaid {
		return nil, domain.Invalid(domain.CodePaymentNotPaid, "only paid payments can be refunded")
	}
	if payment.ProviderPaymentID == nil || *payment.ProviderPaymentID == "" {
		return nil, domain.Invalid(domain.CodePaymentMissingRef, "payment has no provider payment id to refund")
	}

	note := ""
	if reason != nil {
		note = *reason
	}
	refund, err := s.gateway.RefundPayment(ctx, payment, note)
	if err != nil {
		return nil, gatewayFailure("failed to refund payment", err)
	}

	ok, err := s.repos.Payments.TransitionStatus(ctx, paymentID,
		[]models.PaymentStatus{models.PaymentStatusPaid}, models.PaymentStatusRefunded)
	if err != nil {
		return nil, fmt.Errorf("failed to mark payment refunded: %w", err)
	}
	if !ok {
		return nil, domain.Conflict("payment", domain.CodeStatusChanged, "payment status changed during refund")
	}
	payment.Status = models.PaymentStatusRefunded

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventRefundCompleted, models.PaymentSourceAdmin).
		ForPayment(payment).
		SetReason(note).
		SetDetails(map[string]interface{}{
			"refund_id":     refund.ID,
			"refund_status": refund.Status,
			"admin_id":      adminID,
		}))

	s.logger.WithFields(logrus.Fields{
		"payment_id": paymentID,
		"refund_id":  refund.ID,
		"admin_id":   adminID,
	}).Info("Payment refunded")
	return payment, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *PaymentService) openPayment(ctx context.Context, booking *models.Booking, tenantID int64, amount decimal.Decimal, currency string) (*models.Payment, error) {
	if currency == "" {
		currency = s.currency
	}
	if !amount.IsPositive() {
		return nil, domain.Invalid(domain.CodeInvalidInput, "payment amount must be positive")
	}

	bookingID := booking.ID
	ownerID := booking.OwnerID
	payment := &models.Payment{
		UserID:       tenantID,
		UserRole:     models.RoleTenant,
		OwnerID:      &ownerID,
		BookingID:    &bookingID,
		Amount:       amount,
		Currency:     currency,
		PurchaseType: models.PurchaseTypeBooking,
		Provider:     models.PaymentProviderPaymongo,
		Status:       models.PaymentStatusPending,
		Metadata: models.JSONB{
			"type":      "booking",
			"bookingId": bookingID,
		},
	}
	if err := s.repos.Payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return payment, nil
}

func (s *PaymentService) issueIntent(ctx context.Context, payment *models.Payment) (*models.PaymentHandle, error) {
	intent, err := s.gateway.CreatePaymentIntent(ctx, payment)
	if err != nil {
		s.abandonPayment(ctx, payment)
		return nil, gatewayFailure("failed to create payment intent", err)
	}

	if err := s.attach(ctx, payment, models.ProviderRefs{PaymentIntentID: &intent.ID}); err != nil {
		return nil, err
	}
	return &models.PaymentHandle{PaymentID: payment.ID, ClientSecret: intent.ClientSecret}, nil
}

// linkLiveAttempt adds a checkout link to a payable attempt instead of opening a second one
func (s *PaymentService) linkLiveAttempt(ctx context.Context, live *models.Payment) (*models.PaymentHandle, error) {
	if live.Status != models.PaymentStatusRequiresAction {
		return nil, domain.Conflict("payment", domain.CodeStatusChanged, "the current payment attempt is still being opened")
	}
	if live.ProviderPaymentLinkID != nil {
		return nil, domain.Invalid(domain.CodePaymentStillPayable, "a checkout link is already open for this booking")
	}

	link, err := s.gateway.CreatePaymentLink(ctx, live)
	if err != nil {
		return nil, gatewayFailure("failed to create payment link", err)
	}
	if err := s.repos.Payments.BackfillProviderRefs(ctx, live.ID, models.ProviderRefs{PaymentLinkID: &link.ID}); err != nil {
		return nil, fmt.Errorf("failed to attach payment link: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id":      live.ID,
		"payment_link_id": link.ID,
	}).Info("Checkout link attached to live payment")
	return &models.PaymentHandle{PaymentID: live.ID, CheckoutURL: link.CheckoutURL}, nil
}

func (s *PaymentService) attach(ctx context.Context, payment *models.Payment, refs models.ProviderRefs) error {
	ok, err := s.repos.Payments.AttachProviderRefs(ctx, payment.ID, refs, models.PaymentStatusRequiresAction)
	if err != nil {
		return fmt.Errorf("failed to attach provider references: %w", err)
	}
	if !ok {
		return domain.Conflict("payment", domain.CodeStatusChanged, "payment left PENDING before provider references were attached")
	}
	payment.Status = models.PaymentStatusRequiresAction
	if refs.PaymentIntentID != nil {
		payment.ProviderPaymentIntentID = refs.PaymentIntentID
	}
	if refs.PaymentLinkID != nil {
		payment.ProviderPaymentLinkID = refs.PaymentLinkID
	}
	return nil
}

// abandonPayment fails an attempt the gateway never accepted
func (s *PaymentService) abandonPayment(ctx context.Context, payment *models.Payment) {
	if _, err := s.repos.Payments.TransitionStatus(ctx, payment.ID,
		[]models.PaymentStatus{models.PaymentStatusPending}, models.PaymentStatusFailed); err != nil {
		s.logger.WithError(err).WithField("payment_id", payment.ID).Error("Failed to mark abandoned payment as failed")
		return
	}
	payment.Status = models.PaymentStatusFailed
}

func (s *PaymentService) loadBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	booking, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, domain.NotFound("booking", domain.CodeBookingNotFound)
	}
	return booking, nil
}

func (s *PaymentService) bookingForTenant(ctx context.Context, bookingID int64, actor models.Actor) (*models.Booking, error) {
	if actor.Role != models.RoleTenant {
		return nil, domain.Forbidden(domain.CodeRoleNotAllowed, "only the tenant can pay for a booking")
	}
	booking, err := s.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeBookingActor(booking, actor); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *PaymentService) loadPayment(ctx context.Context, paymentID int64) (*models.Payment, error) {
	payment, err := s.repos.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if payment == nil {
		return nil, domain.NotFound("payment", domain.CodePaymentNotFound)
	}
	return payment, nil
}

func (s *PaymentService) audit(ctx context.Context, entry *models.PaymentAudit) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("event_type", entry.EventType).Error("Failed to write payment audit")
	}
}

func gatewayFailure(msg string, err error) error {
	if errors.Is(err, ErrGatewayNotConfigured) {
		return domain.Internal(domain.CodeGatewayNotConfigured, msg, err)
	}
	return domain.Internal(domain.CodeGatewayError, msg, err)
}
