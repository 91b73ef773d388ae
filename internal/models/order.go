package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
)

// ProviderState holds everything the gateway has told us about an order.
// Persisted as jsonb; every field is optional because events arrive in any
// order and some orders are credits-only.
type ProviderState struct {
	RazorpayOrderID   string `json:"razorpay_order_id,omitempty"`
	RazorpayPaymentID string `json:"razorpay_payment_id,omitempty"`
	RazorpayRefundID  string `json:"razorpay_refund_id,omitempty"`
	PaymentMethod     string `json:"payment_method,omitempty"`
	PaymentAttempts   int    `json:"payment_attempts,omitempty"`
	FailureReason     string `json:"failure_reason,omitempty"`
	CreditsApplied    int    `json:"credits_applied,omitempty"`
	RefundAmount      int    `json:"refund_amount,omitempty"`
	// IdempotencyKey is the watermark of the last processed event.
	IdempotencyKey   string     `json:"idempotency_key,omitempty"`
	PendingExpiresAt *time.Time `json:"pending_expires_at,omitempty"`
}

// ShippingAddress is the address snapshot captured at order creation.
type ShippingAddress struct {
	Line1   string `json:"line1"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Country string `json:"country"`
}

// OrderMetadata is frozen at creation time and never recomputed, so that
// confirmation pages cannot show prices that drift after checkout.
type OrderMetadata struct {
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerPhone   string          `json:"customer_phone,omitempty"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	ShippingCost    int             `json:"shipping_cost"`
}

// Order amounts are in paise.
type Order struct {
	ID                   uuid.UUID     `json:"id"`
	OrderNumber          string        `json:"order_number"`
	UserID               *uuid.UUID    `json:"user_id,omitempty"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	OrderStatus          OrderStatus   `json:"order_status"`
	ProviderState        ProviderState `json:"provider_state"`
	Metadata             OrderMetadata `json:"metadata"`
	Items                []OrderItem   `json:"items,omitempty"`
	SubtotalPaise        int           `json:"subtotal"`
	ShippingFeePaise     int           `json:"shipping_fee"`
	TotalPaise           int           `json:"total_amount"`
	InternalShippingCost int           `json:"internal_shipping_cost"`
	ShiprocketShipmentID string        `json:"shiprocket_shipment_id,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	PaidAt               time.Time     `json:"paid_at"`
	RefundedAt           time.Time     `json:"refunded_at"`
}

type OrderItem struct {
	ID             uuid.UUID `json:"id"`
	OrderID        uuid.UUID `json:"order_id"`
	SKU            string    `json:"sku"`
	VariantID      uuid.UUID `json:"variant_id"`
	Quantity       int       `json:"quantity"`
	UnitPricePaise int       `json:"unit_price"`
	SubtotalPaise  int       `json:"subtotal"`
}
