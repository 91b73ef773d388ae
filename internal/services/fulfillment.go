package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/clovemart/clovemart/internal/db"
	"github.com/clovemart/clovemart/internal/logging"
	"github.com/clovemart/clovemart/internal/observability"
)

// FulfillmentConfig is injected at construction so the chain never reads
// process-wide state.
type FulfillmentConfig struct {
	ShipmentCreationEnabled bool
	MaxPickupRetries        int
	PendingOrderTTL         time.Duration
}

type StepResult struct {
	Step  string `json:"step"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// FulfillmentReport records the outcome of every side-effect step for one
// paid order. It exists for logging and operator inspection; nothing in the
// payment flow branches on it.
type FulfillmentReport struct {
	OrderID uuid.UUID    `json:"order_id"`
	Steps   []StepResult `json:"steps"`
}

func (r *FulfillmentReport) Failed() []StepResult {
	var failed []StepResult
	for _, step := range r.Steps {
		if !step.OK {
			failed = append(failed, step)
		}
	}
	return failed
}

type stockDecrementer interface {
	DecrementStock(ctx context.Context, variantID uuid.UUID, quantity int) (before, after int, err error)
}

type shippingCostWriter interface {
	SetInternalShippingCost(ctx context.Context, orderID uuid.UUID, costPaise int) error
}

type rateLookup interface {
	Lookup(pincode string) (int, error)
}

type shipmentTrigger interface {
	EnsureShipment(ctx context.Context, order *db.Order) (string, error)
}

type creditSettler interface {
	SettleCredits(ctx context.Context, order *db.Order) error
}

// FulfillmentService runs the post-payment side-effect chain. Steps run in
// order, each supervised: a panic or error in one step is captured into the
// report and the remaining steps still run. Nothing here can revert a paid
// order.
type FulfillmentService struct {
	cfg       FulfillmentConfig
	variants  stockDecrementer
	orders    shippingCostWriter
	rates     rateLookup
	shipments shipmentTrigger
	wallet    creditSettler
	email     OrderEmailSender
	logger    *slog.Logger
}

func NewFulfillmentService(cfg FulfillmentConfig, variants stockDecrementer, orders shippingCostWriter, rates rateLookup, shipments shipmentTrigger, wallet creditSettler, emailSender OrderEmailSender, logger *slog.Logger) *FulfillmentService {
	if emailSender == nil {
		emailSender = noopEmailSender{}
	}
	return &FulfillmentService{
		cfg:       cfg,
		variants:  variants,
		orders:    orders,
		rates:     rates,
		shipments: shipments,
		wallet:    wallet,
		email:     emailSender,
		logger:    logger,
	}
}

// Run executes the chain for an order whose paid transition has already been
// committed.
func (s *FulfillmentService) Run(ctx context.Context, order *db.Order) *FulfillmentReport {
	span, ctx := observability.StartSpan(ctx, "service.fulfillment", "Run")
	defer span.Finish()

	ctx, logger := logging.WithOrder(ctx, s.logger, order.ID.String(), order.OrderNumber)
	meter := observability.MeterFromContext(ctx)
	meter.Count("fulfillment.started", 1)

	report := &FulfillmentReport{OrderID: order.ID}

	s.runStep(ctx, report, "stock_decrement", func() error {
		return s.decrementStock(ctx, order)
	})
	s.runStep(ctx, report, "shipping_cost", func() error {
		return s.recordShippingCost(ctx, order)
	})
	if s.cfg.ShipmentCreationEnabled {
		s.runStep(ctx, report, "shipment_creation", func() error {
			_, err := s.shipments.EnsureShipment(ctx, order)
			return err
		})
	}
	s.runStep(ctx, report, "credit_settlement", func() error {
		return s.wallet.SettleCredits(ctx, order)
	})
	s.runStep(ctx, report, "confirmation_email", func() error {
		return s.email.SendOrderConfirmation(ctx, order)
	})

	if failed := report.Failed(); len(failed) > 0 {
		for _, step := range failed {
			meter.Count("fulfillment.step.failed", 1, sentry.WithAttributes(
				attribute.String("step", step.Step),
			))
		}
		logger.Warn("fulfillment completed with failures", "failed_steps", len(failed))
	} else {
		logger.Info("fulfillment completed")
	}
	meter.Count("fulfillment.completed", 1)

	return report
}

func (s *FulfillmentService) runStep(ctx context.Context, report *FulfillmentReport, name string, fn func() error) {
	result := StepResult{Step: name, OK: true}
	defer func() {
		if r := recover(); r != nil {
			result.OK = false
			result.Error = fmt.Sprintf("panic: %v", r)
			logging.FromContext(ctx, s.logger).Error("fulfillment step panicked", "step", name, "panic", r)
			sentry.CurrentHub().Recover(r)
		}
		report.Steps = append(report.Steps, result)
	}()

	if err := fn(); err != nil {
		result.OK = false
		result.Error = err.Error()
		logging.FromContext(ctx, s.logger).Error("fulfillment step failed", "step", name, "error", err)
	}
}

// decrementStock reduces stock per item, floored at zero. Per-item failures
// are logged and iteration continues; a partial decrement is preferred over
// none.
func (s *FulfillmentService) decrementStock(ctx context.Context, order *db.Order) error {
	logger := logging.FromContext(ctx, s.logger)

	var firstErr error
	for _, item := range order.Items {
		before, after, err := s.variants.DecrementStock(ctx, item.VariantID, item.Quantity)
		if err != nil {
			logger.Error("stock decrement failed", "sku", item.SKU, "variant_id", item.VariantID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("sku %s: %w", item.SKU, err)
			}
			continue
		}
		if before < item.Quantity {
			logger.Warn("oversold variant, stock floored at zero",
				"sku", item.SKU, "stock_before", before, "quantity", item.Quantity)
		}
		logger.Info("stock decremented", "sku", item.SKU, "stock_before", before, "stock_after", after)
	}
	return firstErr
}

// recordShippingCost looks up the internal shipping cost for the order's
// pincode and persists it. A failed lookup records zero so downstream
// accounting never sees a missing value.
func (s *FulfillmentService) recordShippingCost(ctx context.Context, order *db.Order) error {
	logger := logging.FromContext(ctx, s.logger)

	cost, err := s.rates.Lookup(order.Metadata.ShippingAddress.Pincode)
	if err != nil {
		logger.Warn("shipping cost lookup failed, recording zero",
			"pincode", order.Metadata.ShippingAddress.Pincode, "error", err)
		cost = 0
	}

	if storeErr := s.orders.SetInternalShippingCost(ctx, order.ID, cost); storeErr != nil {
		return fmt.Errorf("failed to persist shipping cost: %w", storeErr)
	}
	order.InternalShippingCost = cost
	order.Metadata.ShippingCost = cost
	return err
}
