package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/bhhunter/rental-backend/internal/middleware"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/bhhunter/rental-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// asUser injects a user context the way AuthMiddleware would
func asUser(userID int64, role models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserContextKey, middleware.UserContext{UserID: userID, Username: "test", Role: role})
		c.Next()
	}
}

func newTestEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(mw...)
	return engine
}

var (
	tenantActor = models.Actor{UserID: 2, Role: models.RoleTenant}
	ownerActor  = models.Actor{UserID: 1, Role: models.RoleOwner}
)

// ============================================================================
// MOCKS
// ============================================================================

type mockBookings struct{ mock.Mock }

func (m *mockBookings) Create(ctx context.Context, roomID, tenantID int64, req models.CreateBookingRequest) (*models.Booking, error) {
	args := m.Called(ctx, roomID, tenantID, req)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) Patch(ctx context.Context, bookingID, tenantID int64, req models.PatchBookingRequest) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, tenantID, req)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) Approve(ctx context.Context, bookingID, ownerID int64, message *string) (*models.ApproveBookingResponse, error) {
	args := m.Called(ctx, bookingID, ownerID, message)
	r, _ := args.Get(0).(*models.ApproveBookingResponse)
	return r, args.Error(1)
}

func (m *mockBookings) Reject(ctx context.Context, bookingID, ownerID int64, reason *string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, ownerID, reason)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) Cancel(ctx context.Context, bookingID int64, actor models.Actor, reason *string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, actor, reason)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) FindAll(ctx context.Context, filter models.BookingFilter) (*models.BookingPage, error) {
	args := m.Called(ctx, filter)
	p, _ := args.Get(0).(*models.BookingPage)
	return p, args.Error(1)
}

func (m *mockBookings) FindOne(ctx context.Context, bookingID int64, actor models.Actor) (*models.Booking, error) {
	args := m.Called(ctx, bookingID, actor)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) Remove(ctx context.Context, bookingID int64) error {
	return m.Called(ctx, bookingID).Error(0)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) CreateCheckoutLink(ctx context.Context, bookingID int64, actor models.Actor) (*models.PaymentHandle, error) {
	args := m.Called(ctx, bookingID, actor)
	h, _ := args.Get(0).(*models.PaymentHandle)
	return h, args.Error(1)
}

func (m *mockPayments) RetryPayment(ctx context.Context, bookingID int64, actor models.Actor) (*models.PaymentHandle, error) {
	args := m.Called(ctx, bookingID, actor)
	h, _ := args.Get(0).(*models.PaymentHandle)
	return h, args.Error(1)
}

func (m *mockPayments) GetBookingPayment(ctx context.Context, bookingID int64, actor models.Actor) (*models.BookingPaymentSummary, error) {
	args := m.Called(ctx, bookingID, actor)
	s, _ := args.Get(0).(*models.BookingPaymentSummary)
	return s, args.Error(1)
}

func (m *mockPayments) CreatePayout(ctx context.Context, paymentID int64) (*models.Payout, error) {
	args := m.Called(ctx, paymentID)
	p, _ := args.Get(0).(*models.Payout)
	return p, args.Error(1)
}

func (m *mockPayments) Refund(ctx context.Context, paymentID, adminID int64, reason *string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID, adminID, reason)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

type mockWebhooks struct{ mock.Mock }

func (m *mockWebhooks) Ingest(ctx context.Context, rawBody []byte, signatureHeader string, meta services.WebhookMeta) (*services.IngestResult, error) {
	args := m.Called(ctx, rawBody, signatureHeader, meta)
	r, _ := args.Get(0).(*services.IngestResult)
	return r, args.Error(1)
}

type mockReceipts struct{ mock.Mock }

func (m *mockReceipts) Render(ctx context.Context, paymentID int64, actor models.Actor) ([]byte, string, error) {
	args := m.Called(ctx, paymentID, actor)
	pdf, _ := args.Get(0).([]byte)
	return pdf, args.String(1), args.Error(2)
}

type mockReconciler struct{ mock.Mock }

func (m *mockReconciler) ReconcilePending(ctx context.Context) (*services.ReconcileReport, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(*services.ReconcileReport)
	return r, args.Error(1)
}

type mockNotifications struct{ mock.Mock }

func (m *mockNotifications) List(ctx context.Context, recipient models.Recipient, filter models.NotificationFilter) (*models.NotificationPage, error) {
	args := m.Called(ctx, recipient, filter)
	p, _ := args.Get(0).(*models.NotificationPage)
	return p, args.Error(1)
}

func (m *mockNotifications) MarkAsRead(ctx context.Context, id int64, recipient models.Recipient) (*models.Notification, error) {
	args := m.Called(ctx, id, recipient)
	n, _ := args.Get(0).(*models.Notification)
	return n, args.Error(1)
}

func (m *mockNotifications) MarkAllAsRead(ctx context.Context, recipient models.Recipient) (int64, error) {
	args := m.Called(ctx, recipient)
	return args.Get(0).(int64), args.Error(1)
}

type stubStreamer struct {
	recipients []models.Recipient
}

func (s *stubStreamer) Stream(c *gin.Context, recipient models.Recipient) {
	s.recipients = append(s.recipients, recipient)
	c.String(http.StatusOK, "event:ready\n\n")
}

type mockVerification struct{ mock.Mock }

func (m *mockVerification) ReviewDocument(ctx context.Context, documentID, adminID int64, req models.ReviewDocumentRequest) (*models.VerificationDocument, error) {
	args := m.Called(ctx, documentID, adminID, req)
	d, _ := args.Get(0).(*models.VerificationDocument)
	return d, args.Error(1)
}

func (m *mockVerification) RemoveDocument(ctx context.Context, documentID, adminID int64) error {
	return m.Called(ctx, documentID, adminID).Error(0)
}

func (m *mockVerification) GetVerificationStatus(ctx context.Context, userID int64, role models.UserRole) (*models.VerificationStatusResponse, error) {
	args := m.Called(ctx, userID, role)
	s, _ := args.Get(0).(*models.VerificationStatusResponse)
	return s, args.Error(1)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }
