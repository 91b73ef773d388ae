package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clovemart/clovemart/internal/db"
	"github.com/clovemart/clovemart/internal/models"
	"github.com/clovemart/clovemart/internal/observability"
	"github.com/clovemart/clovemart/internal/razorpay"
)

// VerifyInput is the client-submitted confirmation. Either the three
// gateway fields are present, or OrderID alone for a credits-only order.
type VerifyInput struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	OrderID           string `json:"order_id"`
}

// eventTypeClientVerify distinguishes client confirmations from webhook
// deliveries in the audit trail.
const (
	eventTypeClientVerify = "client.verify"
	eventTypeCreditsOnly  = "client.credits_only"
)

// VerifyPayment confirms a payment from the storefront's success callback.
// It runs the same guard, transition and fulfillment chain as the webhook;
// whichever arrives second becomes a no-op.
func (s *PaymentService) VerifyPayment(ctx context.Context, input VerifyInput) (*PaymentResult, error) {
	span, ctx := observability.StartSpan(ctx, "service.payment", "VerifyPayment")
	defer span.Finish()

	if input.RazorpayPaymentID == "" && input.OrderID != "" {
		return s.verifyCreditsOnly(ctx, input.OrderID)
	}

	if err := razorpay.VerifyPaymentSignature(input.RazorpayOrderID, input.RazorpayPaymentID, input.RazorpaySignature, s.keySecret); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByProviderOrderID(ctx, input.RazorpayOrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no order for gateway order %s", ErrVerificationRejected, input.RazorpayOrderID)
		}
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}

	// Same second-level guard as the webhook path.
	if seen, err := s.logs.HasPaidEvent(ctx, input.RazorpayPaymentID); err != nil {
		return nil, fmt.Errorf("failed to check paid events: %w", err)
	} else if seen {
		return alreadyProcessed(), nil
	}
	if order.PaymentStatus == db.PaymentPaid && order.ProviderState.RazorpayPaymentID == input.RazorpayPaymentID {
		return alreadyProcessed(), nil
	}

	idempotencyKey := razorpay.IdempotencyKey(
		[]byte(input.RazorpayOrderID+"|"+input.RazorpayPaymentID),
		input.RazorpaySignature,
	)

	log := &db.PaymentLog{
		OrderID:           &order.ID,
		Provider:          providerRazorpay,
		EventType:         eventTypeClientVerify,
		IdempotencyKey:    idempotencyKey,
		ProviderPaymentID: input.RazorpayPaymentID,
		Status:            models.LogStatusPaid,
		PayloadExcerpt:    fmt.Sprintf("order=%s payment=%s", input.RazorpayOrderID, input.RazorpayPaymentID),
	}
	if err := s.logs.Create(ctx, log); err != nil {
		if errors.Is(err, db.ErrDuplicateEvent) {
			return alreadyProcessed(), nil
		}
		return nil, fmt.Errorf("failed to write payment log: %w", err)
	}

	return s.confirmPaid(ctx, order, input.RazorpayPaymentID, "", idempotencyKey)
}

// verifyCreditsOnly confirms an order whose total is fully covered by
// applied credits, so no gateway payment exists to verify.
func (s *PaymentService) verifyCreditsOnly(ctx context.Context, orderIDRaw string) (*PaymentResult, error) {
	orderID, err := uuid.Parse(orderIDRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid order id", ErrVerificationRejected)
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: order not found", ErrVerificationRejected)
		}
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}

	if order.ProviderState.CreditsApplied < order.TotalPaise {
		return nil, fmt.Errorf("%w: order is not fully covered by credits", ErrVerificationRejected)
	}
	if order.PaymentStatus == db.PaymentPaid {
		return alreadyProcessed(), nil
	}

	idempotencyKey := razorpay.IdempotencyKey([]byte(order.ID.String()), eventTypeCreditsOnly)

	log := &db.PaymentLog{
		OrderID:        &order.ID,
		Provider:       providerRazorpay,
		EventType:      eventTypeCreditsOnly,
		IdempotencyKey: idempotencyKey,
		Status:         models.LogStatusPaid,
		PayloadExcerpt: fmt.Sprintf("order=%s credits=%d", order.ID, order.ProviderState.CreditsApplied),
	}
	if err := s.logs.Create(ctx, log); err != nil {
		if errors.Is(err, db.ErrDuplicateEvent) {
			return alreadyProcessed(), nil
		}
		return nil, fmt.Errorf("failed to write payment log: %w", err)
	}

	return s.confirmPaid(ctx, order, "", "credits", idempotencyKey)
}
