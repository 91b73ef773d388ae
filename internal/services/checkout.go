package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clovemart/clovemart/internal/db"
	"github.com/clovemart/clovemart/internal/logging"
	"github.com/clovemart/clovemart/internal/models"
	"github.com/clovemart/clovemart/internal/observability"
	"github.com/clovemart/clovemart/internal/razorpay"
)

// ErrInvalidOrder marks a business-rule violation during checkout
// (400-class). No order row exists when this is returned.
var ErrInvalidOrder = errors.New("invalid order")

// ErrRetryWindowExpired marks a retry attempted after the pending window
// closed.
var ErrRetryWindowExpired = errors.New("payment window expired")

const maxItemQuantity = 50

type checkoutOrderStore interface {
	Create(ctx context.Context, order *db.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*db.Order, error)
	SetGatewayOrder(ctx context.Context, orderID uuid.UUID, razorpayOrderID string, expiresAt time.Time) error
}

type variantReader interface {
	GetBySKU(ctx context.Context, sku string) (*db.Variant, error)
}

type gatewayOrderCreator interface {
	CreateOrder(ctx context.Context, amountPaise int, receipt string) (*razorpay.GatewayOrder, error)
	KeyID() string
}

type creditValidator interface {
	ValidateCredits(ctx context.Context, userID uuid.UUID, requestedPaise int) error
}

// CheckoutService validates a cart against live stock and prices, freezes
// the order snapshot and registers the gateway order the payment widget
// needs.
type CheckoutService struct {
	orders   checkoutOrderStore
	variants variantReader
	gateway  gatewayOrderCreator
	wallet   creditValidator
	rates    rateLookup

	pendingTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewCheckoutService(orders checkoutOrderStore, variants variantReader, gateway gatewayOrderCreator, wallet creditValidator, rates rateLookup, pendingTTL time.Duration, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		orders:     orders,
		variants:   variants,
		gateway:    gateway,
		wallet:     wallet,
		rates:      rates,
		pendingTTL: pendingTTL,
		logger:     logger,
		now:        time.Now,
	}
}

type CreateOrderItemInput struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type CreateOrderInput struct {
	UserID         *uuid.UUID             `json:"-"`
	CustomerName   string                 `json:"customer_name"`
	CustomerEmail  string                 `json:"customer_email"`
	CustomerPhone  string                 `json:"customer_phone"`
	Address        models.ShippingAddress `json:"shipping_address"`
	Items          []CreateOrderItemInput `json:"items"`
	CreditsToApply int                    `json:"credits_to_apply"`
}

// CheckoutResult carries the identifiers the payment widget is launched
// with. RazorpayOrderID is empty when credits cover the full total.
type CheckoutResult struct {
	OrderID         uuid.UUID `json:"order_id"`
	OrderNumber     string    `json:"order_number"`
	RazorpayOrderID string    `json:"razorpay_order_id,omitempty"`
	RazorpayKeyID   string    `json:"razorpay_key_id,omitempty"`
	AmountPaise     int       `json:"amount"`
	Currency        string    `json:"currency"`
}

// CreateOrder runs all validation before any write, so a rejected checkout
// leaves no partial state.
func (s *CheckoutService) CreateOrder(ctx context.Context, input CreateOrderInput) (*CheckoutResult, error) {
	span, ctx := observability.StartSpan(ctx, "service.checkout", "CreateOrder")
	defer span.Finish()

	logger := logging.FromContext(ctx, s.logger)
	meter := observability.MeterFromContext(ctx)
	meter.Count("checkout.received", 1)
	rejected := func(reason string) {
		meter.Count("checkout.rejected", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	if err := validateCustomer(input); err != nil {
		rejected("customer")
		return nil, err
	}

	shippingFee, err := s.rates.Lookup(input.Address.Pincode)
	if err != nil {
		rejected("pincode")
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	items, subtotal, err := s.priceItems(ctx, input.Items)
	if err != nil {
		rejected("items")
		return nil, err
	}

	total := subtotal + shippingFee

	credits := input.CreditsToApply
	if credits > 0 {
		if input.UserID == nil {
			rejected("credits")
			return nil, fmt.Errorf("%w: credits require a signed-in user", ErrInvalidOrder)
		}
		if credits > total {
			rejected("credits")
			return nil, fmt.Errorf("%w: credits %d exceed order total %d", ErrInvalidOrder, credits, total)
		}
		if err := s.wallet.ValidateCredits(ctx, *input.UserID, credits); err != nil {
			rejected("credits")
			return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
		}
	}

	order := &db.Order{
		UserID:        input.UserID,
		PaymentStatus: db.PaymentPending,
		OrderStatus:   db.OrderCreated,
		ProviderState: models.ProviderState{
			CreditsApplied: credits,
		},
		Metadata: models.OrderMetadata{
			CustomerName:    strings.TrimSpace(input.CustomerName),
			CustomerEmail:   strings.TrimSpace(input.CustomerEmail),
			CustomerPhone:   strings.TrimSpace(input.CustomerPhone),
			ShippingAddress: input.Address,
			ShippingCost:    shippingFee,
		},
		Items:            items,
		SubtotalPaise:    subtotal,
		ShippingFeePaise: shippingFee,
		TotalPaise:       total,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	meter.Count("checkout.order_created", 1)

	result := &CheckoutResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		AmountPaise: total - credits,
		Currency:    "INR",
	}

	// Fully credit-covered orders skip the gateway; the client confirms
	// through the verify endpoint instead.
	if result.AmountPaise == 0 {
		logger.Info("order fully covered by credits", "order_id", order.ID, "credits", credits)
		return result, nil
	}

	gatewayOrder, err := s.gateway.CreateOrder(ctx, result.AmountPaise, order.OrderNumber)
	if err != nil {
		meter.Count("checkout.gateway_failed", 1)
		return nil, fmt.Errorf("failed to create gateway order for %s: %w", order.OrderNumber, err)
	}
	if err := s.orders.SetGatewayOrder(ctx, order.ID, gatewayOrder.ID, s.now().Add(s.pendingTTL)); err != nil {
		return nil, fmt.Errorf("failed to record gateway order: %w", err)
	}

	result.RazorpayOrderID = gatewayOrder.ID
	result.RazorpayKeyID = s.gateway.KeyID()

	logger.Info("checkout created", "order_id", order.ID, "order_number", order.OrderNumber,
		"total", total, "credits", credits, "razorpay_order_id", gatewayOrder.ID)
	return result, nil
}

// Retry reuses the existing gateway order while the pending window is open,
// regenerating it when the gateway order is missing. After the window the
// client must start a fresh checkout at current prices.
func (s *CheckoutService) Retry(ctx context.Context, orderID uuid.UUID) (*CheckoutResult, error) {
	span, ctx := observability.StartSpan(ctx, "service.checkout", "Retry")
	defer span.Finish()

	meter := observability.MeterFromContext(ctx)
	meter.Count("checkout.retry.received", 1)

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order not found", ErrInvalidOrder)
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	if order.PaymentStatus != db.PaymentPending && order.PaymentStatus != db.PaymentFailed {
		return nil, fmt.Errorf("%w: order is %s, nothing to retry", ErrInvalidOrder, order.PaymentStatus)
	}

	payable := order.TotalPaise - order.ProviderState.CreditsApplied
	if payable <= 0 {
		return nil, fmt.Errorf("%w: order has no payable balance", ErrInvalidOrder)
	}

	if s.now().After(order.CreatedAt.Add(s.pendingTTL)) {
		meter.Count("checkout.retry.expired", 1)
		return nil, ErrRetryWindowExpired
	}

	result := &CheckoutResult{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		RazorpayKeyID: s.gateway.KeyID(),
		AmountPaise:   payable,
		Currency:      "INR",
	}

	if id := order.ProviderState.RazorpayOrderID; id != "" {
		if exp := order.ProviderState.PendingExpiresAt; exp != nil && s.now().Before(*exp) {
			result.RazorpayOrderID = id
			meter.Count("checkout.retry.reused", 1)
			return result, nil
		}
	}

	gatewayOrder, err := s.gateway.CreateOrder(ctx, payable, order.OrderNumber)
	if err != nil {
		meter.Count("checkout.gateway_failed", 1)
		return nil, fmt.Errorf("failed to recreate gateway order for %s: %w", order.OrderNumber, err)
	}
	if err := s.orders.SetGatewayOrder(ctx, order.ID, gatewayOrder.ID, s.now().Add(s.pendingTTL)); err != nil {
		return nil, fmt.Errorf("failed to record gateway order: %w", err)
	}

	result.RazorpayOrderID = gatewayOrder.ID
	meter.Count("checkout.retry.regenerated", 1)

	logging.FromContext(ctx, s.logger).Info("checkout retry issued new gateway order",
		"order_id", order.ID, "razorpay_order_id", gatewayOrder.ID)
	return result, nil
}

func (s *CheckoutService) priceItems(ctx context.Context, inputs []CreateOrderItemInput) ([]db.OrderItem, int, error) {
	if len(inputs) == 0 {
		return nil, 0, fmt.Errorf("%w: order has no items", ErrInvalidOrder)
	}

	seen := make(map[string]struct{}, len(inputs))
	items := make([]db.OrderItem, 0, len(inputs))
	subtotal := 0

	for _, input := range inputs {
		sku := strings.TrimSpace(input.SKU)
		if sku == "" {
			return nil, 0, fmt.Errorf("%w: item has no sku", ErrInvalidOrder)
		}
		if _, dup := seen[sku]; dup {
			return nil, 0, fmt.Errorf("%w: duplicate sku %s", ErrInvalidOrder, sku)
		}
		seen[sku] = struct{}{}

		if input.Quantity <= 0 || input.Quantity > maxItemQuantity {
			return nil, 0, fmt.Errorf("%w: quantity for %s must be between 1 and %d", ErrInvalidOrder, sku, maxItemQuantity)
		}

		variant, err := s.variants.GetBySKU(ctx, sku)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, 0, fmt.Errorf("%w: unknown sku %s", ErrInvalidOrder, sku)
			}
			return nil, 0, fmt.Errorf("failed to load variant %s: %w", sku, err)
		}
		if variant.Stock < input.Quantity {
			return nil, 0, fmt.Errorf("%w: sku %s has %d in stock, requested %d", ErrInvalidOrder, sku, variant.Stock, input.Quantity)
		}

		itemSubtotal := variant.PricePaise * input.Quantity
		items = append(items, db.OrderItem{
			SKU:            sku,
			VariantID:      variant.ID,
			Quantity:       input.Quantity,
			UnitPricePaise: variant.PricePaise,
			SubtotalPaise:  itemSubtotal,
		})
		subtotal += itemSubtotal
	}

	return items, subtotal, nil
}

func validateCustomer(input CreateOrderInput) error {
	if strings.TrimSpace(input.CustomerName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidOrder)
	}
	email := strings.TrimSpace(input.CustomerEmail)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: a valid customer email is required", ErrInvalidOrder)
	}
	if strings.TrimSpace(input.Address.Line1) == "" || strings.TrimSpace(input.Address.City) == "" {
		return fmt.Errorf("%w: shipping address is incomplete", ErrInvalidOrder)
	}
	return nil
}
