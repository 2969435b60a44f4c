package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bhhunter/rental-backend/internal/domain"
	"github.com/bhhunter/rental-backend/internal/middleware"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/bhhunter/rental-backend/internal/services"
	"github.com/bhhunter/rental-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SignatureHeaderName is the header PayMongo signs deliveries with
const SignatureHeaderName = "Paymongo-Signature"

// maxWebhookBody caps webhook payloads at 1 MiB
const maxWebhookBody = 1 << 20

// PaymentAPI is the payment ledger as seen by HTTP
type PaymentAPI interface {
	CreateCheckoutLink(ctx context.Context, bookingID int64, actor models.Actor) (*models.PaymentHandle, error)
	RetryPayment(ctx context.Context, bookingID int64, actor models.Actor) (*models.PaymentHandle, error)
	GetBookingPayment(ctx context.Context, bookingID int64, actor models.Actor) (*models.BookingPaymentSummary, error)
	CreatePayout(ctx context.Context, paymentID int64) (*models.Payout, error)
	Refund(ctx context.Context, paymentID, adminID int64, reason *string) (*models.Payment, error)
}

// WebhookIngestor consumes raw provider deliveries
type WebhookIngestor interface {
	Ingest(ctx context.Context, rawBody []byte, signatureHeader string, meta services.WebhookMeta) (*services.IngestResult, error)
}

// ReceiptRenderer renders receipts for settled payments
type ReceiptRenderer interface {
	Render(ctx context.Context, paymentID int64, actor models.Actor) ([]byte, string, error)
}

// Reconciler runs one reconciliation sweep on demand
type Reconciler interface {
	ReconcilePending(ctx context.Context) (*services.ReconcileReport, error)
}

// PaymentHandler handles payment-related HTTP requests
type PaymentHandler struct {
	payments   PaymentAPI
	webhooks   WebhookIngestor
	receipts   ReceiptRenderer
	reconciler Reconciler
	logger     *logrus.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(
	payments PaymentAPI,
	webhooks WebhookIngestor,
	receipts ReceiptRenderer,
	reconciler Reconciler,
	logger *logrus.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		payments:   payments,
		webhooks:   webhooks,
		receipts:   receipts,
		reconciler: reconciler,
		logger:     logger,
	}
}

// ============================================================================
// BOOKING PAYMENTS
// ============================================================================

// GetBookingPayment handles GET /api/v1/bookings/:id/payment
func (h *PaymentHandler) GetBookingPayment(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	summary, err := h.payments.GetBookingPayment(c.Request.Context(), bookingID, userCtx.Actor())
	if err != nil {
		respondDomainError(c, h.logger, err, "get booking payment")
		return
	}

	c.JSON(http.StatusOK, summary)
}

// RetryPayment handles POST /api/v1/bookings/:id/payment/retry
func (h *PaymentHandler) RetryPayment(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	handle, err := h.payments.RetryPayment(c.Request.Context(), bookingID, userCtx.Actor())
	if err != nil {
		respondDomainError(c, h.logger, err, "retry payment")
		return
	}

	c.JSON(http.StatusCreated, handle)
}

// CreateCheckoutLink handles POST /api/v1/bookings/:id/payment/checkout
func (h *PaymentHandler) CreateCheckoutLink(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	bookingID, ok := parseIDParam(c, "id", "booking")
	if !ok {
		return
	}

	handle, err := h.payments.CreateCheckoutLink(c.Request.Context(), bookingID, userCtx.Actor())
	if err != nil {
		respondDomainError(c, h.logger, err, "create checkout link")
		return
	}

	c.JSON(http.StatusCreated, handle)
}

// ============================================================================
// PROVIDER WEBHOOK
// ============================================================================

// PaymongoWebhook handles POST /api/v1/payments/webhook/paymongo
// The signature is computed over the raw body, so it is read before any decoding.
// Every verified or unverified delivery is answered 200 so the provider stops retrying.
func (h *PaymentHandler) PaymongoWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusRequestEntityTooLarge, "invalid_request", domain.CodeInvalidInput, "Unable to read webhook body")
		return
	}

	result, err := h.webhooks.Ingest(c.Request.Context(), body, c.GetHeader(SignatureHeaderName), services.WebhookMeta{
		IPAddress: utils.ClientIP(c),
		UserAgent: utils.UserAgent(c),
		RequestID: middleware.GetRequestID(c),
	})
	if err != nil {
		respondDomainError(c, h.logger, err, "process webhook")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ============================================================================
// PAYMENT DOCUMENTS AND ADMIN
// ============================================================================

// GetReceipt handles GET /api/v1/payments/:id/receipt
func (h *PaymentHandler) GetReceipt(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	paymentID, ok := parseIDParam(c, "id", "payment")
	if !ok {
		return
	}

	pdf, fileName, err := h.receipts.Render(c.Request.Context(), paymentID, userCtx.Actor())
	if err != nil {
		respondDomainError(c, h.logger, err, "render receipt")
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(fileName))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// RefundPayment handles POST /api/v1/payments/:id/refund
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}
	paymentID, ok := parseIDParam(c, "id", "payment")
	if !ok {
		return
	}

	var req models.RefundPaymentRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	payment, err := h.payments.Refund(c.Request.Context(), paymentID, userCtx.UserID, req.Reason)
	if err != nil {
		respondDomainError(c, h.logger, err, "refund payment")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payment refunded",
		"payment": payment,
	})
}

// CreatePayout handles POST /api/v1/payments/:id/payout
func (h *PaymentHandler) CreatePayout(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	paymentID, ok := parseIDParam(c, "id", "payment")
	if !ok {
		return
	}

	payout, err := h.payments.CreatePayout(c.Request.Context(), paymentID)
	if err != nil {
		respondDomainError(c, h.logger, err, "create payout")
		return
	}

	c.JSON(http.StatusOK, gin.H{"payout": payout})
}

// ReconcilePayments handles POST /api/v1/admin/payments/reconcile
func (h *PaymentHandler) ReconcilePayments(c *gin.Context) {
	userCtx, ok := requireUser(c)
	if !ok {
		return
	}

	report, err := h.reconciler.ReconcilePending(c.Request.Context())
	if err != nil {
		respondDomainError(c, h.logger, err, "reconcile payments")
		return
	}

	h.logger.WithFields(logrus.Fields{
		"admin_id": userCtx.UserID,
		"checked":  report.Checked,
		"paid":     report.Paid,
		"failed":   report.Failed,
	}).Info("Manual reconciliation finished")

	c.JSON(http.StatusOK, report)
}
