package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clovemart/clovemart/internal/config"
	"github.com/clovemart/clovemart/internal/db"
	"github.com/clovemart/clovemart/internal/logging"
	"github.com/clovemart/clovemart/internal/services"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MB

// PaymentProcessor confirms payments from webhook and client callbacks.
type PaymentProcessor interface {
	HandleWebhook(ctx context.Context, body []byte, signature string) (*services.PaymentResult, error)
	VerifyPayment(ctx context.Context, input services.VerifyInput) (*services.PaymentResult, error)
}

// CheckoutManager creates pending orders and reissues gateway orders.
type CheckoutManager interface {
	CreateOrder(ctx context.Context, input services.CreateOrderInput) (*services.CheckoutResult, error)
	Retry(ctx context.Context, orderID uuid.UUID) (*services.CheckoutResult, error)
}

// OTPManager runs the passwordless login flow.
type OTPManager interface {
	RequestCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) (string, error)
	ValidateSessionToken(token string) (string, error)
}

// ShipmentRetriggerer re-runs shipment creation for an order.
type ShipmentRetriggerer interface {
	RetriggerShipment(ctx context.Context, orderID uuid.UUID) (string, error)
}

type orderReader interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*db.Order, error)
}

type paymentLogReader interface {
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]db.PaymentLog, error)
}

// Handlers provides the HTTP handlers for the payment and fulfillment API.
type Handlers struct {
	config          *config.Config
	db              *pgxpool.Pool
	paymentService  PaymentProcessor
	checkoutService CheckoutManager
	otpService      OTPManager
	shipmentService ShipmentRetriggerer
	orderStore      orderReader
	paymentLogStore paymentLogReader
	logger          *slog.Logger
}

type Dependencies struct {
	Config          *config.Config
	DB              *pgxpool.Pool
	PaymentService  PaymentProcessor
	CheckoutService CheckoutManager
	OTPService      OTPManager
	ShipmentService ShipmentRetriggerer
	OrderStore      orderReader
	PaymentLogStore paymentLogReader
	Logger          *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.PaymentService == nil {
		return nil, fmt.Errorf("handlers dependencies: paymentService is required")
	}
	if deps.CheckoutService == nil {
		return nil, fmt.Errorf("handlers dependencies: checkoutService is required")
	}
	if deps.OTPService == nil {
		return nil, fmt.Errorf("handlers dependencies: otpService is required")
	}
	if deps.ShipmentService == nil {
		return nil, fmt.Errorf("handlers dependencies: shipmentService is required")
	}
	if deps.OrderStore == nil {
		return nil, fmt.Errorf("handlers dependencies: orderStore is required")
	}
	if deps.PaymentLogStore == nil {
		return nil, fmt.Errorf("handlers dependencies: paymentLogStore is required")
	}

	return &Handlers{
		config:          deps.Config,
		db:              deps.DB,
		paymentService:  deps.PaymentService,
		checkoutService: deps.CheckoutService,
		otpService:      deps.OTPService,
		shipmentService: deps.ShipmentService,
		orderStore:      deps.OrderStore,
		paymentLogStore: deps.PaymentLogStore,
		logger:          logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			logger.Error("database health check failed", "error", err)
			http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		logger.Error("failed to encode health response", "error", err)
	}
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}
