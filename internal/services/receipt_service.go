package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/bhhunter/rental-backend/internal/domain"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/phpdave11/gofpdf"
)

// PaymentReader returns a payment the actor is allowed to see
type PaymentReader interface {
	GetPayment(ctx context.Context, paymentID int64, actor models.Actor) (*models.Payment, error)
}

// ReceiptService renders PDF receipts for settled payments
type ReceiptService struct {
	payments PaymentReader
	now      func() time.Time
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(payments PaymentReader) *ReceiptService {
	return &ReceiptService{payments: payments, now: time.Now}
}

// Render returns the receipt PDF and its file name.
// Only PAID and REFUNDED payments have receipts.
func (s *ReceiptService) Render(ctx context.Context, paymentID int64, actor models.Actor) ([]byte, string, error) {
	payment, err := s.payments.GetPayment(ctx, paymentID, actor)
	if err != nil {
		return nil, "", err
	}
	if payment.Status != models.PaymentStatusPaid && payment.Status != models.PaymentStatusRefunded {
		return nil, "", domain.Invalid(domain.CodeReceiptUnavailable, "receipts are only available for settled payments")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payment Receipt", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "PAYMENT RECEIPT")
	pdf.Ln(12)

	if payment.Status == models.PaymentStatusRefunded {
		pdf.SetTextColor(200, 0, 0)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Cell(0, 8, "REFUNDED")
		pdf.Ln(10)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.SetFont("Helvetica", "", 12)
	for _, line := range receiptLines(payment, s.now()) {
		pdf.CellFormat(55, 7, line[0], "", 0, "", false, 0, "")
		pdf.CellFormat(0, 7, line[1], "", 1, "", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, fmt.Sprintf("Total: %s %s", payment.Currency, payment.Amount.StringFixed(2)))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "This receipt was generated electronically and is valid without a signature.", "", "", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", fmt.Errorf("failed to render receipt: %w", err)
	}
	return buf.Bytes(), fmt.Sprintf("receipt-%d.pdf", payment.ID), nil
}

func receiptLines(p *models.Payment, issued time.Time) [][2]string {
	lines := [][2]string{
		{"Receipt No.", fmt.Sprintf("RCPT-%06d", p.ID)},
		{"Issued", issued.Format("2006-01-02 15:04")},
	}
	if p.BookingID != nil {
		lines = append(lines, [2]string{"Booking", fmt.Sprintf("#%d", *p.BookingID)})
	}
	if p.PaidAt != nil {
		lines = append(lines, [2]string{"Paid at", p.PaidAt.Format("2006-01-02 15:04")})
	}
	lines = append(lines, [2]string{"Provider", string(p.Provider)})
	if p.ProviderPaymentID != nil {
		lines = append(lines, [2]string{"Provider ref.", *p.ProviderPaymentID})
	} else if p.ProviderPaymentIntentID != nil {
		lines = append(lines, [2]string{"Provider ref.", *p.ProviderPaymentIntentID})
	}
	lines = append(lines, [2]string{"Status", string(p.Status)})
	return lines
}
