package handlers

import (
	"context"
	"net/http"

	"github.com/bhhunter/rental-backend/internal/domain"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// BookingAPI is the booking state machine as seen by HTTP
type BookingAPI interface {
	Create(ctx context.Context, roomID, tenantID int64, req models.CreateBookingRequest) (*models.Booking, error)
	Patch(ctx context.Context, bookingID, tenantID int64, req models.PatchBookingRequest) (*models.Booking, error)
	Approve(ctx context.Context, bookingID, ownerID int64, message *string) (*models.ApproveBookingResponse, error)
	Reject(ctx context.Context, bookingID, ownerID int64, reason *string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID int64, actor models.Actor, reason *string) (*models.Booking, error)
	FindAll(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error)
	FindOne(ctx context.Context, bookingID int64, actor models.Actor) (*models.Booking, error)
	Remove(ctx context.Context, bookingID int64) error
}

// BookingHandler handles booking-related HTTP requests
type BookingHandler struct {
	bookings BookingAPI
	logger   *logrus.Logger
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(bookings BookingAPI, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{bookings: bookings, logger: logger}
}

// ============================================================================
// TENANT
// ============================================================================

// CreateBooking handles POST /api/v1/bookings/:id
// The path ID is the room being requested.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "id", "room")
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", domain.CodeInvalidInput, "Invalid request body: "+err.Error())
		return
	}

	booking, err := h.bookings.Create(c.Request.Context(), roomID, userCtx.UserID, req)
	if err != nil {
		respondDomainError(c, h.logger, err, "create booking")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Booking request sent",
		"booking": booking,
	})
}

// PatchBooking handles PATCH /api/v1/bookings/:id
func (h *BookingHandler) PatchBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	var req models.PatchBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", domain.CodeInvalidInput, "Invalid request body: "+err.Error())
		return
	}

	booking, err := h.bookings.Patch(c.Request.Context(), bookingID, userCtx.UserID, req)
	if err != nil {
		respondDomainError(c, h.logger, err, "update booking")
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// ============================================================================
// OWNER
// ============================================================================

// ApproveBooking handles PATCH /api/v1/bookings/:id/owner/approve
func (h *BookingHandler) ApproveBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	var req models.ApproveBookingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	resp, err := h.bookings.Approve(c.Request.Context(), bookingID, userCtx.UserID, req.Message)
	if err != nil {
		respondDomainError(c, h.logger, err, "approve booking")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RejectBooking handles PATCH /api/v1/bookings/:id/owner/reject
func (h *BookingHandler) RejectBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	var req models.RejectBookingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	booking, err := h.bookings.Reject(c.Request.Context(), bookingID, userCtx.UserID, req.Reason)
	if err != nil {
		respondDomainError(c, h.logger, err, "reject booking")
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// ============================================================================
// SHARED
// ============================================================================

// CancelBooking handles POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	var req models.CancelBookingRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	booking, err := h.bookings.Cancel(c.Request.Context(), bookingID, userCtx.Actor(), req.Reason)
	if err != nil {
		respondDomainError(c, h.logger, err, "cancel booking")
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// ListBookings handles GET /api/v1/bookings
// Tenants only see their own bookings and owners only see bookings on their rooms.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	var filter models.BookingFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", domain.CodeInvalidInput, "Invalid query parameters: "+err.Error())
		return
	}

	switch userCtx.Role {
	case models.RoleTenant:
		tenantID := userCtx.UserID
		filter.TenantID = &tenantID
		filter.OwnerID = nil
	case models.RoleOwner:
		ownerID := userCtx.UserID
		filter.OwnerID = &ownerID
	}

	page, err := h.bookings.FindAll(c.Request.Context(), filter)
	if err != nil {
		respondDomainError(c, h.logger, err, "list bookings")
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	booking, err := h.bookings.FindOne(c.Request.Context(), bookingID, userCtx.Actor())
	if err != nil {
		respondDomainError(c, h.logger, err, "get booking")
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// DeleteBooking handles DELETE /api/v1/bookings/:id
func (h *BookingHandler) DeleteBooking(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	if err := h.bookings.Remove(c.Request.Context(), bookingID); err != nil {
		respondDomainError(c, h.logger, err, "delete booking")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"admin_id":   userCtx.UserID,
	}).Info("Booking deleted")

	c.JSON(http.StatusOK, gin.H{"message": "Booking deleted"})
}
