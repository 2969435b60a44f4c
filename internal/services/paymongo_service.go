package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bhhunter/rental-backend/internal/config"
	"github.com/bhhunter/rental-backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentGateway is the outbound contract with the payment provider
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, payment *models.Payment) (*PaymentIntent, error)
	CreatePaymentLink(ctx context.Context, payment *models.Payment) (*PaymentLink, error)
	RefundPayment(ctx context.Context, payment *models.Payment, reason string) (*Refund, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntentResource, error)
}

// PaymentIntent is the caller-facing part of a created intent
type PaymentIntent struct {
	ID           string
	ClientSecret string
}

// PaymentLink is the caller-facing part of a created checkout link
type PaymentLink struct {
	ID              string
	CheckoutURL     string
	PaymentIntentID string
}

// Refund is the provider's refund acknowledgement
type Refund struct {
	ID     string
	Status string
	Raw    json.RawMessage
}

// PaymentIntentResource is the subset of a retrieved intent used for reconciliation
type PaymentIntentResource struct {
	ID         string
	Status     string
	PaymentIDs []string
	LastError  string
}

// Provider intent statuses
const (
	IntentStatusSucceeded             = "succeeded"
	IntentStatusAwaitingPaymentMethod = "awaiting_payment_method"
	IntentStatusProcessing            = "processing"
)

// ErrGatewayNotConfigured is returned before any call when the secret key is missing
var ErrGatewayNotConfigured = errors.New("payment gateway not configured: missing secret key")

// GatewayError is a non-2xx answer from the provider
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("paymongo %s returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// PaymongoService talks to the PayMongo REST API
type PaymongoService struct {
	config *config.PayMongoConfig
	logger *logrus.Logger
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPaymongoService creates a new PayMongo gateway adapter
func NewPaymongoService(cfg *config.PayMongoConfig, logger *logrus.Logger) *PaymongoService {
	return &PaymongoService{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		sleep: sleepContext,
	}
}

// IsConfigured returns true if the gateway has credentials
func (s *PaymongoService) IsConfigured() bool {
	return s.config.SecretKey != ""
}

// ====================================================================
// Wire types
// ====================================================================

type paymongoEnvelope struct {
	Data paymongoResource `json:"data"`
}

type paymongoResource struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

type intentAttributes struct {
	ClientKey        string `json:"client_key"`
	Status           string `json:"status"`
	LastPaymentError *struct {
		Code           string `json:"code"`
		FailedCode     string `json:"failed_code"`
		FailedMessage  string `json:"failed_message"`
		PaymentMessage string `json:"message"`
	} `json:"last_payment_error"`
	Payments []struct {
		ID string `json:"id"`
	} `json:"payments"`
}

type linkAttributes struct {
	CheckoutURL   string `json:"checkout_url"`
	PaymentIntent string `json:"payment_intent"`
}

type refundAttributes struct {
	Status string `json:"status"`
}

// ====================================================================
// Operations
// ====================================================================

// CreatePaymentIntent creates a payment intent and returns its client secret
func (s *PaymongoService) CreatePaymentIntent(ctx context.Context, payment *models.Payment) (*PaymentIntent, error) {
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"attributes": map[string]interface{}{
				"amount":                 toMinorUnits(payment.Amount),
				"currency":               payment.Currency,
				"payment_method_allowed": s.config.PaymentMethods,
				"payment_method_options": map[string]interface{}{
					"card": map[string]string{"request_three_d_secure": "any"},
				},
				"description": bookingDescription(payment),
				"metadata":    paymentMetadata(payment),
			},
		},
	}

	var env paymongoEnvelope
	if err := s.call(ctx, "create_payment_intent", http.MethodPost, "/payment_intents", payload, &env); err != nil {
		return nil, err
	}

	var attrs intentAttributes
	if err := json.Unmarshal(env.Data.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("failed to parse payment intent: %w", err)
	}
	if env.Data.ID == "" {
		return nil, fmt.Errorf("payment intent response has no id")
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id":         payment.ID,
		"provider_intent_id": env.Data.ID,
	}).Info("PayMongo payment intent created")

	return &PaymentIntent{ID: env.Data.ID, ClientSecret: attrs.ClientKey}, nil
}

// CreatePaymentLink creates a hosted checkout link
func (s *PaymongoService) CreatePaymentLink(ctx context.Context, payment *models.Payment) (*PaymentLink, error) {
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"attributes": map[string]interface{}{
				"amount":      toMinorUnits(payment.Amount),
				"currency":    payment.Currency,
				"description": bookingDescription(payment),
				"remarks":     fmt.Sprintf("Payment %d", payment.ID),
				"metadata":    paymentMetadata(payment),
			},
		},
	}

	var env paymongoEnvelope
	if err := s.call(ctx, "create_payment_link", http.MethodPost, "/payment_links", payload, &env); err != nil {
		return nil, err
	}

	var attrs linkAttributes
	if err := json.Unmarshal(env.Data.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("failed to parse payment link: %w", err)
	}
	if env.Data.ID == "" || attrs.CheckoutURL == "" {
		return nil, fmt.Errorf("payment link response is missing id or checkout url")
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id":       payment.ID,
		"provider_link_id": env.Data.ID,
	}).Info("PayMongo payment link created")

	return &PaymentLink{ID: env.Data.ID, CheckoutURL: attrs.CheckoutURL, PaymentIntentID: attrs.PaymentIntent}, nil
}

// RefundPayment refunds the full amount of a settled payment
func (s *PaymongoService) RefundPayment(ctx context.Context, payment *models.Payment, reason string) (*Refund, error) {
	if payment.ProviderPaymentID == nil || *payment.ProviderPaymentID == "" {
		return nil, fmt.Errorf("payment %d has no provider payment id", payment.ID)
	}
	if reason == "" {
		reason = "Customer request"
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"attributes": map[string]interface{}{
				"amount":     toMinorUnits(payment.Amount),
				"payment_id": *payment.ProviderPaymentID,
				"reason":     "requested_by_customer",
				"notes":      reason,
			},
		},
	}

	var raw json.RawMessage
	if err := s.call(ctx, "refund_payment", http.MethodPost, "/refunds", payload, &raw); err != nil {
		return nil, err
	}

	var env paymongoEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to parse refund: %w", err)
	}
	var attrs refundAttributes
	if err := json.Unmarshal(env.Data.Attributes, &attrs); err != nil {
		s.logger.WithError(err).WithField("refund_id", env.Data.ID).Warn("Failed to parse PayMongo refund attributes")
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"refund_id":  env.Data.ID,
		"status":     attrs.Status,
	}).Info("PayMongo refund created")

	return &Refund{ID: env.Data.ID, Status: attrs.Status, Raw: raw}, nil
}

// RetrievePaymentIntent fetches the current state of an intent
func (s *PaymongoService) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntentResource, error) {
	var env paymongoEnvelope
	if err := s.call(ctx, "retrieve_payment_intent", http.MethodGet, "/payment_intents/"+intentID, nil, &env); err != nil {
		return nil, err
	}

	var attrs intentAttributes
	if err := json.Unmarshal(env.Data.Attributes, &attrs); err != nil {
		return nil, fmt.Errorf("failed to parse payment intent: %w", err)
	}

	resource := &PaymentIntentResource{ID: env.Data.ID, Status: attrs.Status}
	for _, p := range attrs.Payments {
		resource.PaymentIDs = append(resource.PaymentIDs, p.ID)
	}
	if e := attrs.LastPaymentError; e != nil {
		switch {
		case e.FailedMessage != "":
			resource.LastError = e.FailedMessage
		case e.PaymentMessage != "":
			resource.LastError = e.PaymentMessage
		case e.FailedCode != "":
			resource.LastError = e.FailedCode
		default:
			resource.LastError = e.Code
		}
	}
	return resource, nil
}

// ====================================================================
// Transport with bounded retry
// ====================================================================

// call sends one logical request, retrying per the configured policy.
// out may be *json.RawMessage or any JSON target.
func (s *PaymongoService) call(ctx context.Context, op, method, path string, payload interface{}, out interface{}) error {
	if !s.IsConfigured() {
		return ErrGatewayNotConfigured
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	url := strings.TrimRight(s.config.BaseURL, "/") + path
	maxAttempts := s.config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := s.config.RetryBackoff

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status, respBody, err := s.send(ctx, method, url, body)

		if err == nil && status >= 200 && status < 300 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to parse %s response: %w", op, err)
			}
			return nil
		}

		retry := false
		if err != nil {
			lastErr = fmt.Errorf("paymongo %s failed: %w", op, err)
			retry = retryableTransportError(ctx, method, err)
		} else {
			lastErr = &GatewayError{Op: op, StatusCode: status, Body: truncate(string(respBody), 512)}
			retry = retryableStatus(method, status)
		}

		if !retry || attempt == maxAttempts {
			break
		}

		s.logger.WithError(lastErr).WithFields(logrus.Fields{
			"op":           op,
			"attempt":      attempt,
			"backoff":      backoff.String(),
			"max_attempts": maxAttempts,
		}).Warn("PayMongo call failed, retrying")

		if err := s.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("paymongo %s cancelled: %w", op, err)
		}
		backoff *= 2
	}

	s.logger.WithError(lastErr).WithField("op", op).Error("PayMongo call failed")
	return lastErr
}

func (s *PaymongoService) send(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.SetBasicAuth(s.config.SecretKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// retryableStatus: GETs retry on 429 and any 5xx. POSTs only where the provider
// cannot have acted on the request.
func retryableStatus(method string, status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if method == http.MethodGet {
		return status >= 500
	}
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryableTransportError(ctx context.Context, method string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if method == http.MethodGet {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// toMinorUnits converts an amount to centavos, truncating sub-centavo digits
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func bookingDescription(payment *models.Payment) string {
	if payment.BookingID != nil {
		return fmt.Sprintf("Booking #%d", *payment.BookingID)
	}
	return fmt.Sprintf("Payment #%d", payment.ID)
}

func paymentMetadata(payment *models.Payment) map[string]string {
	meta := map[string]string{
		"paymentId": strconv.FormatInt(payment.ID, 10),
		"type":      "booking",
	}
	if payment.BookingID != nil {
		meta["bookingId"] = strconv.FormatInt(*payment.BookingID, 10)
	}
	return meta
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
