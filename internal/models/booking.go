package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPendingRequest  BookingStatus = "PENDING_REQUEST"
	BookingStatusAwaitingPayment BookingStatus = "AWAITING_PAYMENT"
	BookingStatusPaymentFailed   BookingStatus = "PAYMENT_FAILED"
	BookingStatusCompleted       BookingStatus = "COMPLETED_BOOKING"
	BookingStatusRejected        BookingStatus = "REJECTED_BOOKING"
	BookingStatusCancelled       BookingStatus = "CANCELLED_BOOKING"
)

// bookingTransitions lists the allowed edges of the booking state machine.
// Nothing leads back into PENDING_REQUEST.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPendingRequest: {
		BookingStatusAwaitingPayment,
		BookingStatusRejected,
		BookingStatusCancelled,
	},
	BookingStatusAwaitingPayment: {
		BookingStatusCompleted,
		BookingStatusPaymentFailed,
		BookingStatusCancelled,
	},
	BookingStatusPaymentFailed: {
		BookingStatusAwaitingPayment,
		BookingStatusCancelled,
	},
}

// IsValid reports whether s is a known booking status
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPendingRequest, BookingStatusAwaitingPayment, BookingStatusPaymentFailed,
		BookingStatusCompleted, BookingStatusRejected, BookingStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

// CanTransitionTo reports whether next is a defined edge from s
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, candidate := range bookingTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// BookingStatusesLeadingTo returns every status that has a defined edge into next.
// Repositories use it as the guard set of conditional updates.
func BookingStatusesLeadingTo(next BookingStatus) []BookingStatus {
	var sources []BookingStatus
	for _, from := range []BookingStatus{
		BookingStatusPendingRequest,
		BookingStatusAwaitingPayment,
		BookingStatusPaymentFailed,
	} {
		if from.CanTransitionTo(next) {
			sources = append(sources, from)
		}
	}
	return sources
}

// Booking represents a tenant's reservation request against a room
type Booking struct {
	ID              int64         `json:"id" db:"id"`
	Reference       string        `json:"reference" db:"reference"`
	TenantID        int64         `json:"tenant_id" db:"tenant_id"`
	RoomID          int64         `json:"room_id" db:"room_id"`
	BoardingHouseID int64         `json:"boarding_house_id" db:"boarding_house_id"`
	CheckInDate     time.Time     `json:"check_in_date" db:"check_in_date"`
	CheckOutDate    time.Time     `json:"check_out_date" db:"check_out_date"`
	Status          BookingStatus `json:"status" db:"status"`
	OwnerMessage    *string       `json:"owner_message,omitempty" db:"owner_message"`
	TenantMessage   *string       `json:"tenant_message,omitempty" db:"tenant_message"`
	Note            *string       `json:"note,omitempty" db:"note"`
	IsDeleted       bool          `json:"-" db:"is_deleted"`
	DateBooked      time.Time     `json:"date_booked" db:"date_booked"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`

	// Joined from rooms / boarding_houses
	OwnerID   int64           `json:"owner_id" db:"owner_id"`
	RoomPrice decimal.Decimal `json:"room_price" db:"room_price"`
}

// BookingMessages carries the optional free-text fields written alongside a status change
type BookingMessages struct {
	OwnerMessage  *string
	TenantMessage *string
}

// CreateBookingRequest is the tenant's booking request body
type CreateBookingRequest struct {
	StartDate time.Time `json:"start_date" binding:"required"`
	EndDate   time.Time `json:"end_date" binding:"required"`
	Note      *string   `json:"note,omitempty"`
}

// PatchBookingRequest lets a tenant cancel or move the dates of a booking.
// CancelReason wins when both are supplied.
type PatchBookingRequest struct {
	CancelReason *string    `json:"cancel_reason,omitempty"`
	NewStartDate *time.Time `json:"new_start_date,omitempty"`
	NewEndDate   *time.Time `json:"new_end_date,omitempty"`
}

// ApproveBookingRequest is the owner's approval body
type ApproveBookingRequest struct {
	Message *string `json:"message,omitempty"`
}

// RejectBookingRequest is the owner's rejection body
type RejectBookingRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// CancelBookingRequest is shared by tenant and owner cancellations
type CancelBookingRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// BookingFilter holds the query parameters of GET /bookings
type BookingFilter struct {
	TenantID        *int64         `form:"tenant_id"`
	OwnerID         *int64         `form:"-"`
	BookID          *int64         `form:"book_id"`
	RoomID          *int64         `form:"room_id"`
	BoardingHouseID *int64         `form:"boarding_house_id"`
	Status          *BookingStatus `form:"status"`
	FromCheckIn     *time.Time     `form:"from_check_in" time_format:"2006-01-02"`
	ToCheckIn       *time.Time     `form:"to_check_in" time_format:"2006-01-02"`
	Page            int            `form:"page"`
	Limit           int            `form:"limit"`
}

// ApproveBookingResponse is returned to the owner after approval
type ApproveBookingResponse struct {
	Booking      *Booking `json:"booking"`
	PaymentID    int64    `json:"payment_id"`
	ClientSecret string   `json:"payment_client_secret,omitempty"`
}

// BookingPage is one page of GET /bookings
type BookingPage struct {
	Items      []*Booking `json:"items"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Limit      int        `json:"limit"`
	TotalPages int        `json:"total_pages"`
}
