package services

import (
	"context"

	"github.com/bhhunter/rental-backend/internal/events"
	"github.com/bhhunter/rental-backend/internal/models"
)

// RegisterNotificationListeners turns every domain event into a stored notification
func RegisterNotificationListeners(bus *events.Bus, svc *NotificationService) {
	events.Subscribe(bus, "notify-booking-requested", func(ctx context.Context, e events.BookingRequested) error {
		return svc.notifyBooking(ctx, e.BookingRef, models.RoleOwner, e.OwnerID,
			models.NotificationBookingRequested,
			"New Booking Request",
			"A new booking request has been submitted.",
			nil)
	})

	events.Subscribe(bus, "notify-booking-approved", func(ctx context.Context, e events.BookingApproved) error {
		return svc.notifyBooking(ctx, e.BookingRef, models.RoleTenant, e.TenantID,
			models.NotificationBookingApproved,
			"Booking Approved",
			"Your booking has been approved.",
			models.JSONB{"paymentId": e.PaymentID})
	})

	events.Subscribe(bus, "notify-booking-rejected", func(ctx context.Context, e events.BookingRejected) error {
		return svc.notifyBooking(ctx, e.BookingRef, models.RoleTenant, e.TenantID,
			models.NotificationBookingRejected,
			"Booking Rejected",
			"Your booking request was rejected.",
			models.JSONB{"reason": e.Reason})
	})

	events.Subscribe(bus, "notify-booking-cancelled", func(ctx context.Context, e events.BookingCancelled) error {
		role, userID := models.RoleTenant, e.TenantID
		message := "Your booking has been cancelled."
		if e.CancelledBy == models.RoleTenant {
			role, userID = models.RoleOwner, e.OwnerID
			message = "The tenant cancelled their booking."
		}
		return svc.notifyBooking(ctx, e.BookingRef, role, userID,
			models.NotificationBookingCancelled,
			"Booking Cancelled",
			message,
			models.JSONB{"reason": e.Reason, "cancelledBy": e.CancelledBy})
	})

	events.Subscribe(bus, "notify-booking-completed", func(ctx context.Context, e events.BookingCompleted) error {
		return svc.notifyBooking(ctx, e.BookingRef, models.RoleTenant, e.TenantID,
			models.NotificationBookingCompleted,
			"Booking Completed",
			"Your stay has been marked as completed. Thank you for using BH Hunter!",
			models.JSONB{"paymentId": e.PaymentID})
	})

	events.Subscribe(bus, "notify-document-approved", func(ctx context.Context, e events.VerificationDocumentApproved) error {
		return svc.notifyDocument(ctx, e.VerificationDocumentReviewed,
			models.NotificationVerificationApproved,
			"Verification Document was approved.",
			"Your Verification Document was approved.")
	})

	events.Subscribe(bus, "notify-document-rejected", func(ctx context.Context, e events.VerificationDocumentRejected) error {
		return svc.notifyDocument(ctx, e.VerificationDocumentReviewed,
			models.NotificationVerificationRejected,
			"Verification Document was rejected.",
			"Your Verification Document was rejected.")
	})

	events.Subscribe(bus, "notify-account-setup", func(ctx context.Context, e events.AccountSetupRequired) error {
		return svc.notifyAccount(ctx, e.AccountRef,
			models.NotificationAccountSetup,
			"Complete your account setup",
			"Complete your profile and submit the required documents to unlock full access.")
	})

	events.Subscribe(bus, "notify-account-verified", func(ctx context.Context, e events.AccountFullyVerified) error {
		return svc.notifyAccount(ctx, e.AccountRef,
			models.NotificationAccountVerified,
			"Your account is fully verified",
			"You now have full access to all platform features.")
	})
}

func (s *NotificationService) notifyBooking(ctx context.Context, ref events.BookingRef, role models.UserRole, userID int64,
	kind models.NotificationType, title, message string, extra models.JSONB) error {
	data := models.JSONB{
		"bookingId":       ref.BookingID,
		"tenantId":        ref.TenantID,
		"ownerId":         ref.OwnerID,
		"roomId":          ref.RoomID,
		"boardingHouseId": ref.BoardingHouseID,
	}
	for k, v := range extra {
		data[k] = v
	}

	entityType := models.EntityTypeBooking
	entityID := ref.BookingID
	_, err := s.Create(ctx, &models.Notification{
		RecipientRole: role,
		RecipientID:   userID,
		Type:          kind,
		Title:         title,
		Message:       message,
		EntityType:    &entityType,
		EntityID:      &entityID,
		Data:          data,
	})
	return err
}

func (s *NotificationService) notifyDocument(ctx context.Context, e events.VerificationDocumentReviewed,
	kind models.NotificationType, title, message string) error {
	entityType := models.EntityTypeVerificationDocument
	entityID := e.VerificationDocumentID
	_, err := s.Create(ctx, &models.Notification{
		RecipientRole: e.UserRole,
		RecipientID:   e.UserID,
		Type:          kind,
		Title:         title,
		Message:       message,
		EntityType:    &entityType,
		EntityID:      &entityID,
		Data: models.JSONB{
			"verificationDocumentId": e.VerificationDocumentID,
			"adminId":                e.AdminID,
			"rejectReason":           e.RejectReason,
		},
	})
	return err
}

func (s *NotificationService) notifyAccount(ctx context.Context, ref events.AccountRef,
	kind models.NotificationType, title, message string) error {
	entityType := models.EntityTypeAccount
	entityID := ref.ID
	_, err := s.Create(ctx, &models.Notification{
		RecipientRole: ref.UserRole,
		RecipientID:   ref.ID,
		Type:          kind,
		Title:         title,
		Message:       message,
		EntityType:    &entityType,
		EntityID:      &entityID,
		Data:          models.JSONB{"resourceType": ref.ResourceType},
	})
	return err
}
