package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bhhunter/rental-backend/internal/config"
	"github.com/bhhunter/rental-backend/internal/events"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newReconciliationTest(h *ledgerHarness, cfg config.ReconciliationConfig) *ReconciliationService {
	svc := NewReconciliationService(&cfg, fakePayments{h.db}, h.gateway, h.payments, h.audits, quietLogger())
	svc.now = func() time.Time { return h.db.now.Add(time.Hour) }
	return svc
}

func defaultReconciliationConfig() config.ReconciliationConfig {
	return config.ReconciliationConfig{
		Enabled:    true,
		Schedule:   "0 */10 * * * *",
		StaleAfter: 15 * time.Minute,
		BatchSize:  50,
	}
}

func TestReconciliation_SettlesFromProviderStatus(t *testing.T) {
	h := newLedgerHarness()
	paidBooking := h.db.seedBooking(models.BookingStatusAwaitingPayment)
	paid := h.db.seedPayment(paidBooking.ID, models.PaymentStatusRequiresAction, "pi_paid")
	failedBooking := h.db.seedBooking(models.BookingStatusAwaitingPayment)
	failed := h.db.seedPayment(failedBooking.ID, models.PaymentStatusRequiresAction, "pi_failed")
	waitingBooking := h.db.seedBooking(models.BookingStatusAwaitingPayment)
	waiting := h.db.seedPayment(waitingBooking.ID, models.PaymentStatusRequiresAction, "pi_waiting")

	h.gateway.On("RetrievePaymentIntent", mock.Anything, "pi_paid").
		Return(&PaymentIntentResource{ID: "pi_paid", Status: IntentStatusSucceeded, PaymentIDs: []string{"pay_9"}}, nil)
	h.gateway.On("RetrievePaymentIntent", mock.Anything, "pi_failed").
		Return(&PaymentIntentResource{ID: "pi_failed", Status: IntentStatusAwaitingPaymentMethod, LastError: "card_declined"}, nil)
	h.gateway.On("RetrievePaymentIntent", mock.Anything, "pi_waiting").
		Return(&PaymentIntentResource{ID: "pi_waiting", Status: IntentStatusAwaitingPaymentMethod}, nil)

	report, err := newReconciliationTest(h, defaultReconciliationConfig()).ReconcilePending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 1, report.Paid)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Untouched)
	assert.Zero(t, report.Errors)

	assert.Equal(t, models.PaymentStatusPaid, h.db.paymentStatus(paid.ID))
	assert.Equal(t, "pay_9", *h.db.payments[paid.ID].ProviderPaymentID)
	assert.Equal(t, models.BookingStatusCompleted, h.db.bookingStatus(paidBooking.ID))
	assert.Equal(t, models.PaymentStatusFailed, h.db.paymentStatus(failed.ID))
	assert.Equal(t, models.BookingStatusPaymentFailed, h.db.bookingStatus(failedBooking.ID))
	assert.Equal(t, models.PaymentStatusRequiresAction, h.db.paymentStatus(waiting.ID))
	assert.Equal(t, 1, h.events.count(events.BookingCompletedName))

	var reconciled int
	for _, kind := range h.audits.types() {
		if kind == models.PaymentEventReconciled {
			reconciled++
		}
	}
	assert.Equal(t, 2, reconciled)
}

func TestReconciliation_SkipsFreshPayments(t *testing.T) {
	h := newLedgerHarness()
	booking := h.db.seedBooking(models.BookingStatusAwaitingPayment)
	h.db.seedPayment(booking.ID, models.PaymentStatusRequiresAction, "pi_fresh")

	cfg := defaultReconciliationConfig()
	cfg.StaleAfter = 2 * time.Hour
	report, err := newReconciliationTest(h, cfg).ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
	h.gateway.AssertNotCalled(t, "RetrievePaymentIntent", mock.Anything, mock.Anything)
}

func TestReconciliation_GatewayErrorsAreCounted(t *testing.T) {
	h := newLedgerHarness()
	booking := h.db.seedBooking(models.BookingStatusAwaitingPayment)
	payment := h.db.seedPayment(booking.ID, models.PaymentStatusRequiresAction, "pi_down")
	h.gateway.On("RetrievePaymentIntent", mock.Anything, "pi_down").Return(nil, errors.New("timeout"))

	report, err := newReconciliationTest(h, defaultReconciliationConfig()).ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, models.PaymentStatusRequiresAction, h.db.paymentStatus(payment.ID))
}

func TestReconciliation_BookingMismatchIsLeftAlone(t *testing.T) {
	h := newLedgerHarness()
	booking := h.db.seedBooking(models.BookingStatusCancelled)
	payment := h.db.seedPayment(booking.ID, models.PaymentStatusRequiresAction, "pi_1")
	h.gateway.On("RetrievePaymentIntent", mock.Anything, "pi_1").
		Return(&PaymentIntentResource{ID: "pi_1", Status: IntentStatusSucceeded}, nil)

	report, err := newReconciliationTest(h, defaultReconciliationConfig()).ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Untouched)
	assert.Equal(t, models.PaymentStatusRequiresAction, h.db.paymentStatus(payment.ID))
	assert.Contains(t, h.audits.types(), models.PaymentEventReconciliationMismatch)
}

func TestReconciliation_MismatchedPaymentsDoNotStarveTheBatch(t *testing.T) {
	h := newLedgerHarness()
	for i := 0; i < 2; i++ {
		booking := h.db.seedBooking(models.BookingStatusCancelled)
		h.db.seedPayment(booking.ID, models.PaymentStatusRequiresAction, "pi_orphan")
	}
	booking := h.db.seedBooking(models.BookingStatusAwaitingPayment)
	payment := h.db.seedPayment(booking.ID, models.PaymentStatusRequiresAction, "pi_live")
	h.gateway.On("RetrievePaymentIntent", mock.Anything, mock.Anything).
		Return(&PaymentIntentResource{Status: IntentStatusSucceeded}, nil)

	cfg := defaultReconciliationConfig()
	cfg.BatchSize = 2
	svc := newReconciliationTest(h, cfg)

	first, err := svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Checked)
	assert.Equal(t, 2, first.Untouched)
	assert.Equal(t, models.PaymentStatusRequiresAction, h.db.paymentStatus(payment.ID))

	second, err := svc.ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Checked)
	assert.Equal(t, 1, second.Paid)
	assert.Equal(t, models.PaymentStatusPaid, h.db.paymentStatus(payment.ID))
	assert.Equal(t, models.BookingStatusCompleted, h.db.bookingStatus(booking.ID))
}

func TestReconciliation_BatchSize(t *testing.T) {
	h := newLedgerHarness()
	for i := 0; i < 5; i++ {
		booking := h.db.seedBooking(models.BookingStatusAwaitingPayment)
		h.db.seedPayment(booking.ID, models.PaymentStatusRequiresAction, "pi_batch")
	}
	h.gateway.On("RetrievePaymentIntent", mock.Anything, "pi_batch").
		Return(&PaymentIntentResource{Status: IntentStatusProcessing}, nil)

	cfg := defaultReconciliationConfig()
	cfg.BatchSize = 2
	report, err := newReconciliationTest(h, cfg).ReconcilePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	h.gateway.AssertNumberOfCalls(t, "RetrievePaymentIntent", 2)
}

func TestReconciliation_StartStop(t *testing.T) {
	h := newLedgerHarness()

	disabled := defaultReconciliationConfig()
	disabled.Enabled = false
	svc := newReconciliationTest(h, disabled)
	require.NoError(t, svc.Start())
	assert.Empty(t, svc.cron.Entries())

	bad := defaultReconciliationConfig()
	bad.Schedule = "every now and then"
	assert.Error(t, newReconciliationTest(h, bad).Start())

	svc = newReconciliationTest(h, defaultReconciliationConfig())
	require.NoError(t, svc.Start())
	assert.Len(t, svc.cron.Entries(), 1)
	svc.Stop()
}
