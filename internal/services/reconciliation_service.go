package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bhhunter/rental-backend/internal/config"
	"github.com/bhhunter/rental-backend/internal/database"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReconcileReport summarises one reconciliation sweep
type ReconcileReport struct {
	Checked   int           `json:"checked"`
	Paid      int           `json:"paid"`
	Failed    int           `json:"failed"`
	Untouched int           `json:"untouched"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration_ns"`
}

// ReconciliationService asks the gateway about payments whose webhook never arrived
type ReconciliationService struct {
	cron     *cron.Cron
	config   *config.ReconciliationConfig
	payments database.PaymentStore
	gateway  PaymentGateway
	settler  PaymentSettler
	audits   PaymentAuditStore
	logger   *logrus.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	cfg *config.ReconciliationConfig,
	payments database.PaymentStore,
	gateway PaymentGateway,
	settler PaymentSettler,
	audits PaymentAuditStore,
	logger *logrus.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		cron:     cron.New(cron.WithSeconds()),
		config:   cfg,
		payments: payments,
		gateway:  gateway,
		settler:  settler,
		audits:   audits,
		logger:   logger,
		now:      time.Now,
	}
}

// Start schedules the sweep. It is a no-op when reconciliation is disabled.
func (s *ReconciliationService) Start() error {
	if !s.config.Enabled {
		s.logger.Info("Payment reconciliation disabled")
		return nil
	}

	_, err := s.cron.AddFunc(s.config.Schedule, s.reconcileJob)
	if err != nil {
		return fmt.Errorf("failed to schedule reconciliation job: %w", err)
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.config.Schedule).Info("Payment reconciliation scheduled")
	return nil
}

// Stop waits for a running sweep to finish
func (s *ReconciliationService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Payment reconciliation stopped")
}

func (s *ReconciliationService) reconcileJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.ReconcilePending(ctx); err != nil {
		s.logger.WithError(err).Error("[CRON] Payment reconciliation failed")
	}
}

// ReconcilePending checks every stale REQUIRES_ACTION payment with the gateway and settles
// the ones the provider reports as succeeded or failed. Overlapping sweeps are skipped.
func (s *ReconciliationService) ReconcilePending(ctx context.Context) (*ReconcileReport, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Payment reconciliation already running, skipping")
		return &ReconcileReport{}, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := s.now()
	stale, err := s.payments.ListStale(ctx, start.Add(-s.config.StaleAfter), s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale payments: %w", err)
	}

	report := &ReconcileReport{Checked: len(stale)}
	for _, payment := range stale {
		if ctx.Err() != nil {
			break
		}
		if !s.reconcileOne(ctx, payment, report) {
			s.requeue(ctx, payment.ID, start)
		}
	}
	report.Duration = time.Since(start)

	s.logger.WithFields(logrus.Fields{
		"checked":     report.Checked,
		"paid":        report.Paid,
		"failed":      report.Failed,
		"untouched":   report.Untouched,
		"errors":      report.Errors,
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("Payment reconciliation finished")
	return report, nil
}

// reconcileOne reports whether the payment was settled
func (s *ReconciliationService) reconcileOne(ctx context.Context, payment *models.Payment, report *ReconcileReport) bool {
	logger := s.logger.WithField("payment_id", payment.ID)
	if payment.ProviderPaymentIntentID == nil {
		report.Untouched++
		return false
	}
	logger = logger.WithField("provider_intent_id", *payment.ProviderPaymentIntentID)

	intent, err := s.gateway.RetrievePaymentIntent(ctx, *payment.ProviderPaymentIntentID)
	if err != nil {
		logger.WithError(err).Warn("Failed to retrieve payment intent")
		report.Errors++
		return false
	}

	if len(intent.PaymentIDs) > 0 && payment.ProviderPaymentID == nil {
		providerPaymentID := intent.PaymentIDs[0]
		if err := s.payments.BackfillProviderRefs(ctx, payment.ID, models.ProviderRefs{PaymentID: &providerPaymentID}); err != nil {
			logger.WithError(err).Warn("Failed to backfill provider payment id")
		} else {
			payment.ProviderPaymentID = &providerPaymentID
		}
	}

	var outcome SettlementOutcome
	switch {
	case intent.Status == IntentStatusSucceeded:
		outcome, err = s.settler.MarkPaid(ctx, payment, models.PaymentSourceReconciler)
		if err == nil && outcome == SettlementApplied {
			report.Paid++
		}
	case intent.Status == IntentStatusAwaitingPaymentMethod && intent.LastError != "":
		outcome, err = s.settler.MarkFailed(ctx, payment, models.PaymentSourceReconciler, intent.LastError)
		if err == nil && outcome == SettlementApplied {
			report.Failed++
		}
	default:
		report.Untouched++
		return false
	}
	if err != nil {
		logger.WithError(err).Error("Failed to settle reconciled payment")
		report.Errors++
		return false
	}
	if outcome != SettlementApplied {
		report.Untouched++
		return false
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventReconciled, models.PaymentSourceReconciler).
		ForPayment(payment).
		SetDetails(map[string]interface{}{"provider_status": intent.Status}))
	return true
}

// requeue moves an unsettled payment behind the rest of the stale set
func (s *ReconciliationService) requeue(ctx context.Context, paymentID int64, checkedAt time.Time) {
	if err := s.payments.Touch(ctx, paymentID, checkedAt); err != nil {
		s.logger.WithError(err).WithField("payment_id", paymentID).Warn("Failed to requeue unsettled payment")
	}
}

func (s *ReconciliationService) audit(ctx context.Context, entry *models.PaymentAudit) {
	if s.audits == nil {
		return
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		s.logger.WithError(err).Error("Failed to write payment audit")
	}
}
