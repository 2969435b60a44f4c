package events

import "github.com/bhhunter/rental-backend/internal/models"

// Event names
const (
	BookingRequestedName             = "booking.requested"
	BookingApprovedName              = "booking.approved"
	BookingRejectedName              = "booking.rejected"
	BookingCancelledName             = "booking.cancelled"
	BookingCompletedName             = "booking.completed"
	VerificationDocumentApprovedName = "verification-document.approved"
	VerificationDocumentRejectedName = "verification-document.rejected"
	AccountFullyVerifiedName         = "account.fully-verified"
	AccountSetupRequiredName         = "account.setup-required"
)

// BookingRef identifies a booking and every party attached to it
type BookingRef struct {
	BookingID       int64 `json:"bookingId"`
	TenantID        int64 `json:"tenantId"`
	OwnerID         int64 `json:"ownerId"`
	RoomID          int64 `json:"roomId"`
	BoardingHouseID int64 `json:"boardingHouseId"`
}

// RefFromBooking builds a BookingRef from a loaded booking
func RefFromBooking(b *models.Booking) BookingRef {
	return BookingRef{
		BookingID:       b.ID,
		TenantID:        b.TenantID,
		OwnerID:         b.OwnerID,
		RoomID:          b.RoomID,
		BoardingHouseID: b.BoardingHouseID,
	}
}

type BookingRequested struct {
	BookingRef
}

func (BookingRequested) EventName() string { return BookingRequestedName }

type BookingApproved struct {
	BookingRef
	PaymentID    int64  `json:"paymentId"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

func (BookingApproved) EventName() string { return BookingApprovedName }

type BookingRejected struct {
	BookingRef
	Reason *string `json:"reason,omitempty"`
}

func (BookingRejected) EventName() string { return BookingRejectedName }

type BookingCancelled struct {
	BookingRef
	CancelledBy models.UserRole `json:"cancelledBy"`
	Reason      *string         `json:"reason,omitempty"`
}

func (BookingCancelled) EventName() string { return BookingCancelledName }

type BookingCompleted struct {
	BookingRef
	PaymentID int64 `json:"paymentId"`
}

func (BookingCompleted) EventName() string { return BookingCompletedName }

// VerificationDocumentReviewed is the shared payload of both review outcomes
type VerificationDocumentReviewed struct {
	VerificationDocumentID int64           `json:"verificationDocumentId"`
	AdminID                int64           `json:"adminId"`
	UserID                 int64           `json:"userId"`
	UserRole               models.UserRole `json:"userRole"`
	RejectReason           *string         `json:"rejectReason,omitempty"`
}

type VerificationDocumentApproved struct {
	VerificationDocumentReviewed
}

func (VerificationDocumentApproved) EventName() string { return VerificationDocumentApprovedName }

type VerificationDocumentRejected struct {
	VerificationDocumentReviewed
}

func (VerificationDocumentRejected) EventName() string { return VerificationDocumentRejectedName }

// AccountRef identifies the account whose verification level changed
type AccountRef struct {
	ID           int64           `json:"id"`
	UserRole     models.UserRole `json:"userRole"`
	ResourceType string          `json:"resourceType"`
}

type AccountFullyVerified struct {
	AccountRef
}

func (AccountFullyVerified) EventName() string { return AccountFullyVerifiedName }

type AccountSetupRequired struct {
	AccountRef
}

func (AccountSetupRequired) EventName() string { return AccountSetupRequiredName }
