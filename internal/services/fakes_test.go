package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clovemart/clovemart/internal/cache"
	"github.com/clovemart/clovemart/internal/db"
	"github.com/clovemart/clovemart/internal/models"
	"github.com/clovemart/clovemart/internal/razorpay"
	"github.com/clovemart/clovemart/internal/shiprocket"
)

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*db.Order

	createErr   error
	markPaidErr error

	markPaidCalls     int
	markFailedCalls   int
	markRefundedCalls int
	shippingCosts     map[uuid.UUID]int
	shipmentIDs       map[uuid.UUID]string
	gatewayOrders     map[uuid.UUID]string
}

func newFakeOrderStore(orders ...*db.Order) *fakeOrderStore {
	s := &fakeOrderStore{
		orders:        make(map[uuid.UUID]*db.Order),
		shippingCosts: make(map[uuid.UUID]int),
		shipmentIDs:   make(map[uuid.UUID]string),
		gatewayOrders: make(map[uuid.UUID]string),
	}
	for _, order := range orders {
		s.orders[order.ID] = order
	}
	return s
}

func (s *fakeOrderStore) Create(_ context.Context, order *db.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	order.ID = uuid.New()
	order.OrderNumber = fmt.Sprintf("CM-%d", len(s.orders)+1000)
	order.CreatedAt = time.Now()
	s.orders[order.ID] = order
	return nil
}

func (s *fakeOrderStore) GetByID(_ context.Context, orderID uuid.UUID) (*db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *order
	return &copied, nil
}

func (s *fakeOrderStore) GetByProviderOrderID(_ context.Context, razorpayOrderID string) (*db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, order := range s.orders {
		if order.ProviderState.RazorpayOrderID == razorpayOrderID {
			copied := *order
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *fakeOrderStore) MarkPaid(_ context.Context, orderID uuid.UUID, paymentID, method, idempotencyKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markPaidErr != nil {
		return s.markPaidErr
	}
	order, ok := s.orders[orderID]
	if !ok {
		return pgx.ErrNoRows
	}
	if order.PaymentStatus != db.PaymentPending && order.PaymentStatus != db.PaymentFailed {
		return db.ErrInvalidStatusTransition
	}
	order.PaymentStatus = db.PaymentPaid
	order.OrderStatus = db.OrderPaid
	order.PaidAt = time.Now()
	order.ProviderState.RazorpayPaymentID = paymentID
	order.ProviderState.PaymentMethod = method
	order.ProviderState.IdempotencyKey = idempotencyKey
	s.markPaidCalls++
	return nil
}

func (s *fakeOrderStore) MarkFailed(_ context.Context, orderID uuid.UUID, reason, idempotencyKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return pgx.ErrNoRows
	}
	if order.PaymentStatus != db.PaymentPending && order.PaymentStatus != db.PaymentFailed {
		return db.ErrInvalidStatusTransition
	}
	order.PaymentStatus = db.PaymentFailed
	order.ProviderState.FailureReason = reason
	order.ProviderState.IdempotencyKey = idempotencyKey
	order.ProviderState.PaymentAttempts++
	s.markFailedCalls++
	return nil
}

func (s *fakeOrderStore) MarkRefunded(_ context.Context, orderID uuid.UUID, refundID string, amountPaise int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return pgx.ErrNoRows
	}
	if order.PaymentStatus != db.PaymentPaid {
		return db.ErrInvalidStatusTransition
	}
	order.PaymentStatus = db.PaymentRefunded
	order.ProviderState.RazorpayRefundID = refundID
	order.ProviderState.RefundAmount = amountPaise
	s.markRefundedCalls++
	return nil
}

func (s *fakeOrderStore) SetGatewayOrder(_ context.Context, orderID uuid.UUID, razorpayOrderID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return pgx.ErrNoRows
	}
	order.ProviderState.RazorpayOrderID = razorpayOrderID
	exp := expiresAt
	order.ProviderState.PendingExpiresAt = &exp
	s.gatewayOrders[orderID] = razorpayOrderID
	return nil
}

func (s *fakeOrderStore) SetInternalShippingCost(_ context.Context, orderID uuid.UUID, costPaise int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shippingCosts[orderID] = costPaise
	return nil
}

func (s *fakeOrderStore) SetShipmentID(_ context.Context, orderID uuid.UUID, shipmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.shipmentIDs[orderID]; exists {
		return nil
	}
	s.shipmentIDs[orderID] = shipmentID
	if order, ok := s.orders[orderID]; ok {
		order.ShiprocketShipmentID = shipmentID
	}
	return nil
}

type fakeLogStore struct {
	mu      sync.Mutex
	logs    []*db.PaymentLog
	keys    map[string]struct{}
	paidIDs map[string]struct{}

	createErr error
}

func newFakeLogStore() *fakeLogStore {
	return &fakeLogStore{
		keys:    make(map[string]struct{}),
		paidIDs: make(map[string]struct{}),
	}
}

func (s *fakeLogStore) Create(_ context.Context, log *db.PaymentLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if _, dup := s.keys[log.IdempotencyKey]; dup {
		return db.ErrDuplicateEvent
	}
	s.keys[log.IdempotencyKey] = struct{}{}
	log.ID = uuid.New()
	log.CreatedAt = time.Now()
	s.logs = append(s.logs, log)
	if log.Status == models.LogStatusPaid && log.ProviderPaymentID != "" {
		s.paidIDs[log.ProviderPaymentID] = struct{}{}
	}
	return nil
}

func (s *fakeLogStore) HasPaidEvent(_ context.Context, providerPaymentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if providerPaymentID == "" {
		return false, nil
	}
	_, ok := s.paidIDs[providerPaymentID]
	return ok, nil
}

func (s *fakeLogStore) byStatus(status models.PaymentLogStatus) []*db.PaymentLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*db.PaymentLog
	for _, log := range s.logs {
		if log.Status == status {
			out = append(out, log)
		}
	}
	return out
}

type fakeCacheProvider struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeCacheProvider() *fakeCacheProvider {
	return &fakeCacheProvider{values: make(map[string]string)}
}

func (c *fakeCacheProvider) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	if !ok {
		return "", cache.ErrNotFound
	}
	return value, nil
}

func (c *fakeCacheProvider) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *fakeCacheProvider) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

func (c *fakeCacheProvider) Close() error { return nil }

type fakeFulfillment struct {
	mu   sync.Mutex
	runs []uuid.UUID
}

func (f *fakeFulfillment) Run(_ context.Context, order *db.Order) *FulfillmentReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, order.ID)
	return &FulfillmentReport{OrderID: order.ID}
}

func (f *fakeFulfillment) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

type fakeWalletStore struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
	debits   map[string]int
	credits  map[string]int

	balanceErr error
}

func newFakeWalletStore() *fakeWalletStore {
	return &fakeWalletStore{
		balances: make(map[uuid.UUID]int),
		debits:   make(map[string]int),
		credits:  make(map[string]int),
	}
}

func (s *fakeWalletStore) Balance(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.balanceErr != nil {
		return 0, s.balanceErr
	}
	return s.balances[userID], nil
}

func (s *fakeWalletStore) Deduct(_ context.Context, userID uuid.UUID, amountPaise int, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.debits[reference]; dup {
		return db.ErrDuplicateDebit
	}
	if s.balances[userID] < amountPaise {
		return db.ErrInsufficientBalance
	}
	s.balances[userID] -= amountPaise
	s.debits[reference] = amountPaise
	return nil
}

func (s *fakeWalletStore) Credit(_ context.Context, userID uuid.UUID, amountPaise int, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] += amountPaise
	s.credits[reference] = amountPaise
	return nil
}

func (s *fakeWalletStore) HasDebitForOrder(_ context.Context, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.debits[reference]
	return ok, nil
}

type fakeVariantStore struct {
	mu       sync.Mutex
	variants map[string]*db.Variant

	decrementErr   map[uuid.UUID]error
	decrementCalls []uuid.UUID
}

func newFakeVariantStore(variants ...*db.Variant) *fakeVariantStore {
	s := &fakeVariantStore{
		variants:     make(map[string]*db.Variant),
		decrementErr: make(map[uuid.UUID]error),
	}
	for _, variant := range variants {
		s.variants[variant.SKU] = variant
	}
	return s
}

func (s *fakeVariantStore) GetBySKU(_ context.Context, sku string) (*db.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	variant, ok := s.variants[sku]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *variant
	return &copied, nil
}

func (s *fakeVariantStore) DecrementStock(_ context.Context, variantID uuid.UUID, quantity int) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decrementCalls = append(s.decrementCalls, variantID)
	if err, ok := s.decrementErr[variantID]; ok {
		return 0, 0, err
	}
	for _, variant := range s.variants {
		if variant.ID == variantID {
			before := variant.Stock
			after := before - quantity
			if after < 0 {
				after = 0
			}
			variant.Stock = after
			return before, after, nil
		}
	}
	return 0, 0, pgx.ErrNoRows
}

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	orders    []int
	nextID    int
}

func (g *fakeGateway) CreateOrder(_ context.Context, amountPaise int, receipt string) (*razorpay.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.nextID++
	g.orders = append(g.orders, amountPaise)
	return &razorpay.GatewayOrder{
		ID:          fmt.Sprintf("order_fake%03d", g.nextID),
		AmountPaise: amountPaise,
		Currency:    "INR",
		Receipt:     receipt,
	}, nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_fake" }

type fakeShipmentAPI struct {
	mu        sync.Mutex
	createErr error
	calls     int
}

func (a *fakeShipmentAPI) CreateShipment(_ context.Context, _ shiprocket.CreateShipmentInput) (*shiprocket.CreateShipmentResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.createErr != nil {
		return nil, a.createErr
	}
	return &shiprocket.CreateShipmentResult{ShipmentID: fmt.Sprintf("ship_%03d", a.calls), OrderID: int64(a.calls)}, nil
}

type fakeEmailSender struct {
	mu            sync.Mutex
	confirmations []uuid.UUID
	otpCodes      map[string]string
	sendErr       error
}

func newFakeEmailSender() *fakeEmailSender {
	return &fakeEmailSender{otpCodes: make(map[string]string)}
}

func (s *fakeEmailSender) SendOrderConfirmation(_ context.Context, order *db.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.confirmations = append(s.confirmations, order.ID)
	return nil
}

func (s *fakeEmailSender) SendOTPCode(_ context.Context, to, code string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.otpCodes[to] = code
	return nil
}

type staticRates struct {
	rate int
	err  error
}

func (r staticRates) Lookup(string) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	return r.rate, nil
}

func pendingOrder(razorpayOrderID string, totalPaise int) *db.Order {
	userID := uuid.New()
	return &db.Order{
		ID:            uuid.New(),
		OrderNumber:   "CM-1001",
		UserID:        &userID,
		PaymentStatus: db.PaymentPending,
		OrderStatus:   db.OrderCreated,
		ProviderState: models.ProviderState{RazorpayOrderID: razorpayOrderID},
		Metadata: models.OrderMetadata{
			CustomerName:  "Asha Rao",
			CustomerEmail: "asha@example.com",
			ShippingAddress: models.ShippingAddress{
				Line1:   "14 MG Road",
				City:    "Bengaluru",
				State:   "Karnataka",
				Pincode: "560001",
				Country: "India",
			},
		},
		SubtotalPaise: totalPaise,
		TotalPaise:    totalPaise,
		CreatedAt:     time.Now(),
		Items: []db.OrderItem{
			{ID: uuid.New(), SKU: "CLOVE-100G", VariantID: uuid.New(), Quantity: 2, UnitPricePaise: totalPaise / 2, SubtotalPaise: totalPaise},
		},
	}
}
