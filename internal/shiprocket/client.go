// Package shiprocket is a thin client for the shipment-creation
// collaborator.
package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const defaultBaseURL = "https://apiv2.shiprocket.in"

// Tokens are valid for ten days; refresh well before that.
const tokenLifetime = 9 * 24 * time.Hour

type Client struct {
	httpClient *http.Client
	baseURL    string
	email      string
	password   string

	mu             sync.Mutex
	token          string
	tokenExpiresAt time.Time
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(email, password string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		email:      email,
		password:   password,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type ShipmentItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
}

type CreateShipmentInput struct {
	OrderNumber   string
	OrderDate     time.Time
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	AddressLine1  string
	AddressLine2  string
	City          string
	State         string
	Pincode       string
	Country       string
	Items         []ShipmentItem
	SubTotal      float64
}

type CreateShipmentResult struct {
	ShipmentID string
	OrderID    int64
}

type createOrderRequest struct {
	OrderID             string         `json:"order_id"`
	OrderDate           string         `json:"order_date"`
	BillingCustomerName string         `json:"billing_customer_name"`
	BillingAddress      string         `json:"billing_address"`
	BillingAddress2     string         `json:"billing_address_2,omitempty"`
	BillingCity         string         `json:"billing_city"`
	BillingState        string         `json:"billing_state"`
	BillingPincode      string         `json:"billing_pincode"`
	BillingCountry      string         `json:"billing_country"`
	BillingEmail        string         `json:"billing_email"`
	BillingPhone        string         `json:"billing_phone"`
	ShippingIsBilling   bool           `json:"shipping_is_billing"`
	OrderItems          []ShipmentItem `json:"order_items"`
	PaymentMethod       string         `json:"payment_method"`
	SubTotal            float64        `json:"sub_total"`
}

type createOrderResponse struct {
	OrderID    int64           `json:"order_id"`
	ShipmentID json.RawMessage `json:"shipment_id"`
	Message    string          `json:"message"`
}

// CreateShipment registers an adhoc order with the collaborator and returns
// the shipment id. Prepaid only: this runs after payment capture.
func (c *Client) CreateShipment(ctx context.Context, input CreateShipmentInput) (*CreateShipmentResult, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	reqBody := createOrderRequest{
		OrderID:             input.OrderNumber,
		OrderDate:           input.OrderDate.Format("2006-01-02 15:04"),
		BillingCustomerName: input.CustomerName,
		BillingAddress:      input.AddressLine1,
		BillingAddress2:     input.AddressLine2,
		BillingCity:         input.City,
		BillingState:        input.State,
		BillingPincode:      input.Pincode,
		BillingCountry:      input.Country,
		BillingEmail:        input.CustomerEmail,
		BillingPhone:        input.CustomerPhone,
		ShippingIsBilling:   true,
		OrderItems:          input.Items,
		PaymentMethod:       "Prepaid",
		SubTotal:            input.SubTotal,
	}

	var resp createOrderResponse
	if err := c.post(ctx, "/v1/external/orders/create/adhoc", token, reqBody, &resp); err != nil {
		return nil, err
	}

	shipmentID := decodeShipmentID(resp.ShipmentID)
	if shipmentID == "" {
		return nil, fmt.Errorf("shipment creation response missing shipment id: %s", resp.Message)
	}

	return &CreateShipmentResult{
		ShipmentID: shipmentID,
		OrderID:    resp.OrderID,
	}, nil
}

func (c *Client) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiresAt) {
		return c.token, nil
	}

	if c.email == "" || c.password == "" {
		return "", fmt.Errorf("shiprocket credentials are not configured")
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/v1/external/auth/login", "", map[string]string{
		"email":    c.email,
		"password": c.password,
	}, &resp); err != nil {
		return "", fmt.Errorf("shiprocket login failed: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("shiprocket login returned empty token")
	}

	c.token = resp.Token
	c.tokenExpiresAt = time.Now().Add(tokenLifetime)
	return c.token, nil
}

func (c *Client) post(ctx context.Context, path, token string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("shiprocket %s returned status %d", path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// The API has returned shipment_id as both a number and a string.
func decodeShipmentID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil && asNumber > 0 {
		return fmt.Sprintf("%d", asNumber)
	}
	return ""
}
