package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentLogStatus string

const (
	LogStatusPaid      PaymentLogStatus = "paid"
	LogStatusFailed    PaymentLogStatus = "failed"
	LogStatusRefunded  PaymentLogStatus = "refunded"
	LogStatusUnknown   PaymentLogStatus = "unknown"
	LogStatusIncident  PaymentLogStatus = "incident"
	LogStatusDuplicate PaymentLogStatus = "duplicate"
)

// PaymentLog is an append-only audit record of every payment event processed
// for an order, including duplicates and failures. Rows are never mutated or
// deleted. OrderID is nil for incidents where no order could be located.
type PaymentLog struct {
	ID                uuid.UUID        `json:"id"`
	OrderID           *uuid.UUID       `json:"order_id"`
	Provider          string           `json:"provider"`
	EventType         string           `json:"event_type"`
	IdempotencyKey    string           `json:"idempotency_key"`
	ProviderPaymentID string           `json:"provider_payment_id,omitempty"`
	Status            PaymentLogStatus `json:"status"`
	PayloadExcerpt    string           `json:"payload_excerpt,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}
