package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clovemart/clovemart/internal/cache"
	"github.com/clovemart/clovemart/internal/db"
	"github.com/clovemart/clovemart/internal/logging"
	"github.com/clovemart/clovemart/internal/models"
	"github.com/clovemart/clovemart/internal/observability"
	"github.com/clovemart/clovemart/internal/razorpay"
)

const (
	providerRazorpay = "razorpay"

	// Processed-event cache entries only need to outlive the gateway's
	// redelivery window.
	processedEventTTL = 24 * time.Hour
)

// ErrInvalidPayload marks a webhook body that passed signature verification
// but cannot be parsed (400-class).
var ErrInvalidPayload = errors.New("invalid payload")

// ErrVerificationRejected marks a client verification request whose inputs
// fail business validation (400-class).
var ErrVerificationRejected = errors.New("verification rejected")

type paymentOrderStore interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*db.Order, error)
	GetByProviderOrderID(ctx context.Context, razorpayOrderID string) (*db.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, paymentID, method, idempotencyKey string) error
	MarkFailed(ctx context.Context, orderID uuid.UUID, reason, idempotencyKey string) error
	MarkRefunded(ctx context.Context, orderID uuid.UUID, refundID string, amountPaise int) error
}

type paymentLogStore interface {
	Create(ctx context.Context, log *db.PaymentLog) error
	HasPaidEvent(ctx context.Context, providerPaymentID string) (bool, error)
}

type fulfillmentRunner interface {
	Run(ctx context.Context, order *db.Order) *FulfillmentReport
}

type creditRefunder interface {
	Refund(ctx context.Context, order *db.Order) error
}

// PaymentService owns the confirmation chain: verify, deduplicate, transition
// the order, then hand off to fulfillment. All gateway entry points (webhook
// and client verify) converge here.
type PaymentService struct {
	orders      paymentOrderStore
	logs        paymentLogStore
	cache       cache.Provider
	fulfillment fulfillmentRunner
	wallet      creditRefunder

	webhookSecret string
	keySecret     string
	logger        *slog.Logger
}

func NewPaymentService(orders paymentOrderStore, logs paymentLogStore, cacheProvider cache.Provider, fulfillment fulfillmentRunner, wallet creditRefunder, webhookSecret, keySecret string, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		orders:        orders,
		logs:          logs,
		cache:         cacheProvider,
		fulfillment:   fulfillment,
		wallet:        wallet,
		webhookSecret: webhookSecret,
		keySecret:     keySecret,
		logger:        logger,
	}
}

// PaymentResult is the success-shaped outcome of a confirmation attempt.
// Success false with a nil error still answers HTTP 200; the gateway must
// not redeliver events we have dealt with.
type PaymentResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func alreadyProcessed() *PaymentResult {
	return &PaymentResult{Success: true, Message: "Event already processed"}
}

// HandleWebhook processes one gateway webhook delivery. The signature is
// checked over the raw bytes before anything else; razorpay.ErrSecretMissing
// and razorpay.ErrSignatureMismatch pass through for the handler to map.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*PaymentResult, error) {
	span, ctx := observability.StartSpan(ctx, "service.payment", "HandleWebhook")
	defer span.Finish()

	logger := logging.FromContext(ctx, s.logger)
	meter := observability.MeterFromContext(ctx)
	meter.Count("payment.webhook.received", 1)

	if err := razorpay.VerifyWebhookSignature(body, signature, s.webhookSecret); err != nil {
		if errors.Is(err, razorpay.ErrSecretMissing) {
			logger.Error("webhook secret is not configured")
		}
		meter.Count("payment.webhook.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", "signature"),
		))
		return nil, err
	}

	idempotencyKey := razorpay.IdempotencyKey(body, signature)
	if s.isProcessed(ctx, idempotencyKey) {
		meter.Count("payment.webhook.duplicate", 1, sentry.WithAttributes(
			attribute.String("source", "cache"),
		))
		return alreadyProcessed(), nil
	}

	event, err := razorpay.ParseEvent(body)
	if err != nil {
		meter.Count("payment.webhook.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", "payload"),
		))
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	result, err := s.processEvent(ctx, event, idempotencyKey)
	if err != nil {
		return nil, err
	}
	s.markProcessed(ctx, idempotencyKey)
	return result, nil
}

func (s *PaymentService) processEvent(ctx context.Context, event *razorpay.Event, idempotencyKey string) (*PaymentResult, error) {
	meter := observability.MeterFromContext(ctx)
	meter.Count("payment.event.received", 1, sentry.WithAttributes(
		attribute.String("event_type", event.Type),
	))

	switch event.Type {
	case razorpay.EventPaymentCaptured, razorpay.EventPaymentAuthorized:
		return s.handlePaidEvent(ctx, event, idempotencyKey)
	case razorpay.EventPaymentFailed:
		return s.handleFailedEvent(ctx, event, idempotencyKey)
	case razorpay.EventRefundProcessed:
		return s.handleRefundEvent(ctx, event, idempotencyKey)
	default:
		return s.handleUnknownEvent(ctx, event, idempotencyKey)
	}
}

func (s *PaymentService) handlePaidEvent(ctx context.Context, event *razorpay.Event, idempotencyKey string) (*PaymentResult, error) {
	order, incident, err := s.findOrder(ctx, event, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if incident != nil {
		return incident, nil
	}

	// A redelivery of the same terminal state under a fresh idempotency key
	// is still a duplicate.
	if seen, err := s.logs.HasPaidEvent(ctx, event.Payment.ID); err != nil {
		return nil, fmt.Errorf("failed to check paid events: %w", err)
	} else if seen {
		return alreadyProcessed(), nil
	}
	if order.PaymentStatus == db.PaymentPaid && order.ProviderState.RazorpayPaymentID == event.Payment.ID {
		return alreadyProcessed(), nil
	}

	log := &db.PaymentLog{
		OrderID:           &order.ID,
		Provider:          providerRazorpay,
		EventType:         event.Type,
		IdempotencyKey:    idempotencyKey,
		ProviderPaymentID: event.Payment.ID,
		Status:            models.LogStatusPaid,
		PayloadExcerpt:    razorpay.PayloadExcerpt(event.RawBody),
	}
	if err := s.logs.Create(ctx, log); err != nil {
		if errors.Is(err, db.ErrDuplicateEvent) {
			return alreadyProcessed(), nil
		}
		return nil, fmt.Errorf("failed to write payment log: %w", err)
	}

	return s.confirmPaid(ctx, order, event.Payment.ID, event.Payment.Method, idempotencyKey)
}

// confirmPaid commits the paid transition and runs fulfillment. Shared by
// the webhook and client-verify paths.
func (s *PaymentService) confirmPaid(ctx context.Context, order *db.Order, paymentID, method, idempotencyKey string) (*PaymentResult, error) {
	ctx, logger := logging.WithOrder(ctx, s.logger, order.ID.String(), order.OrderNumber)
	meter := observability.MeterFromContext(ctx)

	if err := s.orders.MarkPaid(ctx, order.ID, paymentID, method, idempotencyKey); err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			// Lost the race to a concurrent delivery that got there first.
			return alreadyProcessed(), nil
		}
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}

	order.PaymentStatus = db.PaymentPaid
	order.OrderStatus = db.OrderPaid
	order.PaidAt = time.Now()
	order.ProviderState.RazorpayPaymentID = paymentID
	order.ProviderState.PaymentMethod = method
	order.ProviderState.IdempotencyKey = idempotencyKey

	logger.Info("payment confirmed", "payment_id", paymentID, "method", method)
	meter.Count("payment.confirmed", 1)

	// Fulfillment failures are captured in the report and never bubble up:
	// the payment is confirmed regardless.
	report := s.fulfillment.Run(ctx, order)
	if failed := report.Failed(); len(failed) > 0 {
		logger.Warn("post-payment chain had failures", "failed_steps", len(failed))
	}

	return &PaymentResult{Success: true, Message: "Payment processed"}, nil
}

func (s *PaymentService) handleFailedEvent(ctx context.Context, event *razorpay.Event, idempotencyKey string) (*PaymentResult, error) {
	order, incident, err := s.findOrder(ctx, event, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if incident != nil {
		return incident, nil
	}

	log := &db.PaymentLog{
		OrderID:           &order.ID,
		Provider:          providerRazorpay,
		EventType:         event.Type,
		IdempotencyKey:    idempotencyKey,
		ProviderPaymentID: event.Payment.ID,
		Status:            models.LogStatusFailed,
		PayloadExcerpt:    razorpay.PayloadExcerpt(event.RawBody),
	}
	if err := s.logs.Create(ctx, log); err != nil {
		if errors.Is(err, db.ErrDuplicateEvent) {
			return alreadyProcessed(), nil
		}
		return nil, fmt.Errorf("failed to write payment log: %w", err)
	}

	reason := event.Payment.ErrorDescription
	if reason == "" {
		reason = "payment failed"
	}
	if err := s.orders.MarkFailed(ctx, order.ID, reason, idempotencyKey); err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			// A failed event after the order was paid never downgrades it.
			return alreadyProcessed(), nil
		}
		return nil, fmt.Errorf("failed to mark order failed: %w", err)
	}

	logging.FromContext(ctx, s.logger).Info("payment failure recorded",
		"order_id", order.ID, "payment_id", event.Payment.ID, "reason", reason)
	observability.MeterFromContext(ctx).Count("payment.failed", 1)

	return &PaymentResult{Success: true, Message: "Payment failure recorded"}, nil
}

func (s *PaymentService) handleRefundEvent(ctx context.Context, event *razorpay.Event, idempotencyKey string) (*PaymentResult, error) {
	order, incident, err := s.findOrder(ctx, event, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if incident != nil {
		return incident, nil
	}

	log := &db.PaymentLog{
		OrderID:           &order.ID,
		Provider:          providerRazorpay,
		EventType:         event.Type,
		IdempotencyKey:    idempotencyKey,
		ProviderPaymentID: event.Refund.PaymentID,
		Status:            models.LogStatusRefunded,
		PayloadExcerpt:    razorpay.PayloadExcerpt(event.RawBody),
	}
	if err := s.logs.Create(ctx, log); err != nil {
		if errors.Is(err, db.ErrDuplicateEvent) {
			return alreadyProcessed(), nil
		}
		return nil, fmt.Errorf("failed to write payment log: %w", err)
	}

	if err := s.orders.MarkRefunded(ctx, order.ID, event.Refund.ID, event.Refund.Amount); err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			return alreadyProcessed(), nil
		}
		return nil, fmt.Errorf("failed to mark order refunded: %w", err)
	}

	logger := logging.FromContext(ctx, s.logger)
	if s.wallet != nil {
		if err := s.wallet.Refund(ctx, order); err != nil {
			logger.Error("failed to return credits after refund", "order_id", order.ID, "error", err)
		}
	}

	logger.Info("refund recorded", "order_id", order.ID, "refund_id", event.Refund.ID, "amount", event.Refund.Amount)
	observability.MeterFromContext(ctx).Count("payment.refunded", 1)

	return &PaymentResult{Success: true, Message: "Refund recorded"}, nil
}

// handleUnknownEvent audits event types this service does not act on. No
// order state changes.
func (s *PaymentService) handleUnknownEvent(ctx context.Context, event *razorpay.Event, idempotencyKey string) (*PaymentResult, error) {
	var orderID *uuid.UUID
	if event.Payment.OrderID != "" {
		if order, err := s.orders.GetByProviderOrderID(ctx, event.Payment.OrderID); err == nil {
			orderID = &order.ID
		}
	}

	log := &db.PaymentLog{
		OrderID:           orderID,
		Provider:          providerRazorpay,
		EventType:         event.Type,
		IdempotencyKey:    idempotencyKey,
		ProviderPaymentID: event.Payment.ID,
		Status:            models.LogStatusUnknown,
		PayloadExcerpt:    razorpay.PayloadExcerpt(event.RawBody),
	}
	if err := s.logs.Create(ctx, log); err != nil && !errors.Is(err, db.ErrDuplicateEvent) {
		return nil, fmt.Errorf("failed to write payment log: %w", err)
	}

	logging.FromContext(ctx, s.logger).Info("ignoring unhandled event type", "event_type", event.Type)
	return &PaymentResult{Success: true, Message: "Unhandled event type"}, nil
}

// findOrder resolves the order for an event. A missing order is not an
// error: an incident row is written and a success-shaped negative result is
// returned so the gateway stops redelivering.
func (s *PaymentService) findOrder(ctx context.Context, event *razorpay.Event, idempotencyKey string) (*db.Order, *PaymentResult, error) {
	providerOrderID := event.Payment.OrderID

	if providerOrderID == "" {
		return nil, s.recordIncident(ctx, event, idempotencyKey), nil
	}

	order, err := s.orders.GetByProviderOrderID(ctx, providerOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.recordIncident(ctx, event, idempotencyKey), nil
		}
		return nil, nil, fmt.Errorf("failed to look up order: %w", err)
	}
	return order, nil, nil
}

func (s *PaymentService) recordIncident(ctx context.Context, event *razorpay.Event, idempotencyKey string) *PaymentResult {
	logger := logging.FromContext(ctx, s.logger)
	logger.Error("no order found for gateway event",
		"event_type", event.Type,
		"razorpay_order_id", event.Payment.OrderID,
		"razorpay_payment_id", event.Payment.ID)
	observability.MeterFromContext(ctx).Count("payment.incident", 1, sentry.WithAttributes(
		attribute.String("event_type", event.Type),
	))

	log := &db.PaymentLog{
		OrderID:           nil,
		Provider:          providerRazorpay,
		EventType:         event.Type,
		IdempotencyKey:    idempotencyKey,
		ProviderPaymentID: event.Payment.ID,
		Status:            models.LogStatusIncident,
		PayloadExcerpt:    razorpay.PayloadExcerpt(event.RawBody),
	}
	if err := s.logs.Create(ctx, log); err != nil {
		if errors.Is(err, db.ErrDuplicateEvent) {
			return alreadyProcessed()
		}
		logger.Error("failed to write incident log", "error", err)
	}

	return &PaymentResult{
		Success: false,
		Message: "Order not found - incident logged for manual review",
	}
}

func (s *PaymentService) isProcessed(ctx context.Context, idempotencyKey string) bool {
	if s.cache == nil {
		return false
	}
	_, err := s.cache.Get(ctx, cache.WebhookKey(providerRazorpay, idempotencyKey))
	return err == nil
}

func (s *PaymentService) markProcessed(ctx context.Context, idempotencyKey string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, cache.WebhookKey(providerRazorpay, idempotencyKey), "1", processedEventTTL); err != nil {
		logging.FromContext(ctx, s.logger).Warn("failed to cache processed event", "error", err)
	}
}
