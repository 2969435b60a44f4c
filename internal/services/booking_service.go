package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bhhunter/rental-backend/internal/database"
	"github.com/bhhunter/rental-backend/internal/domain"
	"github.com/bhhunter/rental-backend/internal/events"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultBookingPageSize = 10
	maxBookingPageSize     = 100
)

// PaymentCreator opens the first payment attempt for an approved booking
type PaymentCreator interface {
	CreateBookingPayment(ctx context.Context, bookingID, tenantID int64, amount decimal.Decimal, currency string) (*models.PaymentHandle, error)
}

// BookingService drives the booking state machine
type BookingService struct {
	repos    database.Repositories
	payments PaymentCreator
	bus      *events.Bus
	logger   *logrus.Logger
	currency string
	now      func() time.Time
}

// NewBookingService creates a new BookingService
func NewBookingService(
	repos database.Repositories,
	payments PaymentCreator,
	bus *events.Bus,
	logger *logrus.Logger,
	currency string,
) *BookingService {
	return &BookingService{
		repos:    repos,
		payments: payments,
		bus:      bus,
		logger:   logger,
		currency: currency,
		now:      time.Now,
	}
}

// ============================================================================
// TENANT OPERATIONS
// ============================================================================

// Create opens a PENDING_REQUEST booking for a room
func (s *BookingService) Create(ctx context.Context, roomID, tenantID int64, req models.CreateBookingRequest) (*models.Booking, error) {
	if !req.EndDate.After(req.StartDate) {
		return nil, domain.Invalid(domain.CodeInvalidDateRange, "end_date must be after start_date")
	}

	room, err := s.repos.Rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	if room == nil {
		return nil, domain.NotFound("room", domain.CodeRoomNotFound)
	}

	now := s.now()
	booking := &models.Booking{
		Reference:       fmt.Sprintf("BK-%d", now.UnixMilli()),
		TenantID:        tenantID,
		RoomID:          room.ID,
		BoardingHouseID: room.BoardingHouseID,
		CheckInDate:     req.StartDate,
		CheckOutDate:    req.EndDate,
		Status:          models.BookingStatusPendingRequest,
		Note:            req.Note,
		DateBooked:      now,
	}
	if err := s.repos.Bookings.Create(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}
	booking.OwnerID = room.OwnerID
	booking.RoomPrice = room.Price

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"room_id":    roomID,
		"tenant_id":  tenantID,
	}).Info("Booking requested")

	events.Publish(ctx, s.bus, events.BookingRequested{BookingRef: events.RefFromBooking(booking)})
	return booking, nil
}

// Patch lets the tenant cancel the booking or move its dates.
// A cancel reason takes precedence over new dates.
func (s *BookingService) Patch(ctx context.Context, bookingID, tenantID int64, req models.PatchBookingRequest) (*models.Booking, error) {
	actor := models.Actor{UserID: tenantID, Role: models.RoleTenant}
	booking, err := s.ValidateAccess(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return nil, domain.Invalid(domain.CodeBookingTerminal, "completed, rejected or cancelled bookings cannot be modified")
	}

	if req.CancelReason != nil && *req.CancelReason != "" {
		return s.cancel(ctx, booking, actor, req.CancelReason)
	}

	if req.NewStartDate == nil && req.NewEndDate == nil {
		return nil, domain.Invalid(domain.CodeInvalidInput, "no valid update data provided")
	}
	if booking.Status != models.BookingStatusPendingRequest {
		return nil, domain.Invalid(domain.CodeBookingNotPending, "dates can only be changed while the request is pending")
	}

	checkIn, checkOut := booking.CheckInDate, booking.CheckOutDate
	if req.NewStartDate != nil {
		checkIn = *req.NewStartDate
	}
	if req.NewEndDate != nil {
		checkOut = *req.NewEndDate
	}
	if !checkOut.After(checkIn) {
		return nil, domain.Invalid(domain.CodeInvalidDateRange, "end date must be after start date")
	}

	ok, err := s.repos.Bookings.UpdateDates(ctx, bookingID, checkIn, checkOut)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking dates: %w", err)
	}
	if !ok {
		return nil, domain.Conflict("booking", domain.CodeStatusChanged, "booking is no longer pending")
	}

	return s.reload(ctx, bookingID)
}

// ============================================================================
// OWNER OPERATIONS
// ============================================================================

// Approve moves a pending request to AWAITING_PAYMENT and opens the first payment attempt.
// If the payment cannot be opened the booking is left in PAYMENT_FAILED.
func (s *BookingService) Approve(ctx context.Context, bookingID, ownerID int64, message *string) (*models.ApproveBookingResponse, error) {
	booking, err := s.ValidateAccess(ctx, bookingID, models.Actor{UserID: ownerID, Role: models.RoleOwner})
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPendingRequest {
		return nil, domain.Invalid(domain.CodeBookingNotPending, "only pending requests can be approved by the owner")
	}

	ok, err := s.repos.Bookings.TransitionStatus(ctx, bookingID,
		[]models.BookingStatus{models.BookingStatusPendingRequest},
		models.BookingStatusAwaitingPayment,
		models.BookingMessages{OwnerMessage: message})
	if err != nil {
		return nil, fmt.Errorf("failed to approve booking: %w", err)
	}
	if !ok {
		return nil, domain.Conflict("booking", domain.CodeStatusChanged, "booking is no longer pending")
	}
	booking.Status = models.BookingStatusAwaitingPayment
	if message != nil {
		booking.OwnerMessage = message
	}

	handle, err := s.payments.CreateBookingPayment(ctx, bookingID, booking.TenantID, booking.RoomPrice, s.currency)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).Error("Failed to create payment for booking")
		if _, markErr := s.MarkPaymentFailed(ctx, bookingID); markErr != nil {
			s.logger.WithError(markErr).WithField("booking_id", bookingID).Error("Failed to mark booking payment as failed")
		}
		return nil, err
	}

	events.Publish(ctx, s.bus, events.BookingApproved{
		BookingRef:   events.RefFromBooking(booking),
		PaymentID:    handle.PaymentID,
		ClientSecret: handle.ClientSecret,
	})

	return &models.ApproveBookingResponse{
		Booking:      booking,
		PaymentID:    handle.PaymentID,
		ClientSecret: handle.ClientSecret,
	}, nil
}

// Reject closes a pending request
func (s *BookingService) Reject(ctx context.Context, bookingID, ownerID int64, reason *string) (*models.Booking, error) {
	booking, err := s.ValidateAccess(ctx, bookingID, models.Actor{UserID: ownerID, Role: models.RoleOwner})
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPendingRequest {
		return nil, domain.Invalid(domain.CodeBookingNotPending, "only pending requests can be rejected by the owner")
	}

	ok, err := s.repos.Bookings.TransitionStatus(ctx, bookingID,
		[]models.BookingStatus{models.BookingStatusPendingRequest},
		models.BookingStatusRejected,
		models.BookingMessages{OwnerMessage: reason})
	if err != nil {
		return nil, fmt.Errorf("failed to reject booking: %w", err)
	}
	if !ok {
		return nil, domain.Conflict("booking", domain.CodeStatusChanged, "booking is no longer pending")
	}
	booking.Status = models.BookingStatusRejected
	if reason != nil {
		booking.OwnerMessage = reason
	}

	events.Publish(ctx, s.bus, events.BookingRejected{
		BookingRef: events.RefFromBooking(booking),
		Reason:     reason,
	})
	return booking, nil
}

// ============================================================================
// SHARED OPERATIONS
// ============================================================================

// Cancel cancels a non-terminal booking on behalf of its tenant or owner
func (s *BookingService) Cancel(ctx context.Context, bookingID int64, actor models.Actor, reason *string) (*models.Booking, error) {
	if actor.Role != models.RoleTenant && actor.Role != models.RoleOwner {
		return nil, domain.Forbidden(domain.CodeRoleNotAllowed, "only the tenant or the owner can cancel a booking")
	}
	booking, err := s.ValidateAccess(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return nil, domain.Invalid(domain.CodeBookingTerminal, "booking can no longer be cancelled")
	}
	return s.cancel(ctx, booking, actor, reason)
}

func (s *BookingService) cancel(ctx context.Context, booking *models.Booking, actor models.Actor, reason *string) (*models.Booking, error) {
	var msgs models.BookingMessages
	if actor.Role == models.RoleOwner {
		msgs.OwnerMessage = reason
	} else {
		msgs.TenantMessage = reason
	}

	ok, err := s.repos.Bookings.TransitionStatus(ctx, booking.ID,
		models.BookingStatusesLeadingTo(models.BookingStatusCancelled),
		models.BookingStatusCancelled, msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	if !ok {
		return nil, domain.Conflict("booking", domain.CodeStatusChanged, "booking status changed before it could be cancelled")
	}

	booking.Status = models.BookingStatusCancelled
	if msgs.OwnerMessage != nil {
		booking.OwnerMessage = msgs.OwnerMessage
	}
	if msgs.TenantMessage != nil {
		booking.TenantMessage = msgs.TenantMessage
	}

	events.Publish(ctx, s.bus, events.BookingCancelled{
		BookingRef:  events.RefFromBooking(booking),
		CancelledBy: actor.Role,
		Reason:      reason,
	})

	s.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"cancelled_by": actor.Role,
	}).Info("Booking cancelled")
	return booking, nil
}

// FindAll returns a page of bookings matching the filter
func (s *BookingService) FindAll(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error) {
	if filter.FromCheckIn != nil && filter.ToCheckIn != nil && filter.FromCheckIn.After(*filter.ToCheckIn) {
		return nil, domain.Invalid(domain.CodeInvalidDateRange, "from_check_in must be before to_check_in")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, domain.Invalid(domain.CodeInvalidInput, "unknown booking status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultBookingPageSize
	}
	if filter.Limit > maxBookingPageSize {
		filter.Limit = maxBookingPageSize
	}

	items, total, err := s.repos.Bookings.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	return &models.BookingPage{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

// FindOne returns a booking the actor may see. Admins see every booking.
func (s *BookingService) FindOne(ctx context.Context, bookingID int64, actor models.Actor) (*models.Booking, error) {
	if actor.Role == models.RoleAdmin {
		return s.reload(ctx, bookingID)
	}
	return s.ValidateAccess(ctx, bookingID, actor)
}

// Remove soft-deletes a booking
func (s *BookingService) Remove(ctx context.Context, bookingID int64) error {
	ok, err := s.repos.Bookings.SoftDelete(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	if !ok {
		return domain.NotFound("booking", domain.CodeBookingNotFound)
	}
	return nil
}

// ValidateAccess loads the booking and checks that the actor is its tenant or its owner
func (s *BookingService) ValidateAccess(ctx context.Context, bookingID int64, actor models.Actor) (*models.Booking, error) {
	booking, err := s.reload(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := authorizeBookingActor(booking, actor); err != nil {
		return nil, err
	}
	return booking, nil
}

// MarkPaymentFailed moves an AWAITING_PAYMENT booking to PAYMENT_FAILED.
// It returns false when the booking was not awaiting payment.
func (s *BookingService) MarkPaymentFailed(ctx context.Context, bookingID int64) (bool, error) {
	return markBookingPaymentFailed(ctx, s.repos.Bookings, bookingID)
}

func (s *BookingService) reload(ctx context.Context, bookingID int64) (*models.Booking, error) {
	booking, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, domain.NotFound("booking", domain.CodeBookingNotFound)
	}
	return booking, nil
}

// ============================================================================
// LIFECYCLE HELPERS
// ============================================================================

// authorizeBookingActor checks tenant or owner identity against a loaded booking
func authorizeBookingActor(booking *models.Booking, actor models.Actor) error {
	switch actor.Role {
	case models.RoleTenant:
		if booking.TenantID != actor.UserID {
			return domain.Forbidden(domain.CodeNotBookingTenant, "you are not the tenant of this booking")
		}
	case models.RoleOwner:
		if booking.OwnerID != actor.UserID {
			return domain.Forbidden(domain.CodeNotBookingOwner, "you do not own this boarding house")
		}
	default:
		return domain.Forbidden(domain.CodeRoleNotAllowed, "role cannot act on bookings")
	}
	return nil
}

func markBookingCompleted(ctx context.Context, store database.BookingStore, bookingID int64) (bool, error) {
	ok, err := store.TransitionStatus(ctx, bookingID,
		[]models.BookingStatus{models.BookingStatusAwaitingPayment, models.BookingStatusPaymentFailed},
		models.BookingStatusCompleted, models.BookingMessages{})
	if err != nil {
		return false, fmt.Errorf("failed to complete booking: %w", err)
	}
	return ok, nil
}

func markBookingPaymentFailed(ctx context.Context, store database.BookingStore, bookingID int64) (bool, error) {
	ok, err := store.TransitionStatus(ctx, bookingID,
		[]models.BookingStatus{models.BookingStatusAwaitingPayment},
		models.BookingStatusPaymentFailed, models.BookingMessages{})
	if err != nil {
		return false, fmt.Errorf("failed to mark booking payment failed: %w", err)
	}
	return ok, nil
}
