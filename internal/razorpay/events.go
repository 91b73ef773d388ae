package razorpay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Event types this service acts on. Anything else is logged as unknown.
const (
	EventPaymentCaptured   = "payment.captured"
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentFailed     = "payment.failed"
	EventRefundProcessed   = "refund.processed"
)

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Method           string `json:"method"`
	Amount           int    `json:"amount"`
	ErrorDescription string `json:"error_description"`
}

type RefundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int    `json:"amount"`
}

// Event is the gateway's webhook envelope, reduced to the fields the order
// state updater consumes.
type Event struct {
	Type    string
	Payment PaymentEntity
	Refund  RefundEntity
	// RawBody is the payload exactly as transmitted; audit rows store a
	// truncated excerpt of it.
	RawBody []byte
}

type eventEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Refund struct {
			Entity RefundEntity `json:"entity"`
		} `json:"refund"`
	} `json:"payload"`
}

// ParseEvent decodes a webhook body. The caller must have verified the
// signature over the same bytes first.
func ParseEvent(body []byte) (*Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if envelope.Event == "" {
		return nil, fmt.Errorf("missing event type")
	}

	return &Event{
		Type:    envelope.Event,
		Payment: envelope.Payload.Payment.Entity,
		Refund:  envelope.Payload.Refund.Entity,
		RawBody: body,
	}, nil
}

// IdempotencyKey fingerprints one webhook delivery: the payload bytes plus
// the delivered signature. Redeliveries of the same event produce the same
// key; distinct events for the same payment do not.
func IdempotencyKey(body []byte, signature string) string {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte(signature))
	return hex.EncodeToString(h.Sum(nil))
}

const payloadExcerptLimit = 512

// PayloadExcerpt truncates the raw payload for audit rows.
func PayloadExcerpt(body []byte) string {
	if len(body) <= payloadExcerptLimit {
		return string(body)
	}
	return string(body[:payloadExcerptLimit])
}
