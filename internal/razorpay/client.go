package razorpay

import (
	"context"
	"fmt"

	razorpaygo "github.com/razorpay/razorpay-go"
)

// GatewayOrder is the gateway-side order a checkout widget is launched with.
type GatewayOrder struct {
	ID          string
	AmountPaise int
	Currency    string
	Receipt     string
}

// Client wraps the Razorpay SDK for order creation.
type Client struct {
	api   *razorpaygo.Client
	keyID string
}

func NewClient(keyID, keySecret string) *Client {
	return &Client{
		api:   razorpaygo.NewClient(keyID, keySecret),
		keyID: keyID,
	}
}

// KeyID is the public key the payment widget needs.
func (c *Client) KeyID() string {
	return c.keyID
}

// CreateOrder registers an order with the gateway and returns its id.
func (c *Client) CreateOrder(ctx context.Context, amountPaise int, receipt string) (*GatewayOrder, error) {
	_ = ctx // the SDK does not accept a context

	if amountPaise <= 0 {
		return nil, fmt.Errorf("gateway order amount must be positive, got %d", amountPaise)
	}

	data := map[string]interface{}{
		"amount":   amountPaise,
		"currency": "INR",
		"receipt":  receipt,
	}
	body, err := c.api.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway order: %w", err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("gateway order response missing id")
	}

	return &GatewayOrder{
		ID:          id,
		AmountPaise: amountPaise,
		Currency:    "INR",
		Receipt:     receipt,
	}, nil
}
