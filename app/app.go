package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/lmittmann/tint"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clovemart/clovemart/internal/cache"
	"github.com/clovemart/clovemart/internal/config"
	"github.com/clovemart/clovemart/internal/db"
	"github.com/clovemart/clovemart/internal/email"
	"github.com/clovemart/clovemart/internal/handlers"
	"github.com/clovemart/clovemart/internal/logging"
	"github.com/clovemart/clovemart/internal/observability"
	"github.com/clovemart/clovemart/internal/razorpay"
	"github.com/clovemart/clovemart/internal/services"
	"github.com/clovemart/clovemart/internal/shiprocket"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	CacheProvider cache.Provider
	Handlers      *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg, initSentry(cfg))

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	rates, err := services.LoadRateTable(cfg.ShippingRatesPath)
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to load shipping rates: %w", err)
	}

	orderStore := db.NewOrderStore(database)
	paymentLogStore := db.NewPaymentLogStore(database)
	variantStore := db.NewVariantStore(database)
	walletStore := db.NewWalletStore(database)

	gateway := razorpay.NewClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	shiprocketClient := shiprocket.NewClient(
		cfg.ShiprocketEmail,
		cfg.ShiprocketPassword,
		shiprocket.WithHTTPClient(observability.NewHTTPClient(30*time.Second)),
	)

	var emailSender services.OrderEmailSender
	if strings.TrimSpace(cfg.ResendAPIKey) != "" {
		provider, err := email.NewProvider(cfg.ResendAPIKey, cfg.EmailFrom)
		if err != nil {
			closeCacheProvider(logger, cacheProvider)
			database.Close()
			return nil, fmt.Errorf("failed to initialize email provider: %w", err)
		}
		emailSender = services.NewProviderEmailSender(provider)
	} else {
		logger.Warn("email provider not configured, order and login mail disabled")
	}

	walletService := services.NewWalletService(walletStore, logger.With("component", "wallet_service"))
	shipmentService := services.NewShipmentService(shiprocketClient, orderStore, logger.With("component", "shipment_service"))

	fulfillmentService := services.NewFulfillmentService(
		services.FulfillmentConfig{
			ShipmentCreationEnabled: cfg.ShipmentCreationEnabled,
			MaxPickupRetries:        cfg.MaxPickupRetries,
			PendingOrderTTL:         cfg.PendingOrderTTL(),
		},
		variantStore,
		orderStore,
		rates,
		shipmentService,
		walletService,
		emailSender,
		logger.With("component", "fulfillment_service"),
	)

	paymentService := services.NewPaymentService(
		orderStore,
		paymentLogStore,
		cacheProvider,
		fulfillmentService,
		walletService,
		cfg.RazorpayWebhookSecret,
		cfg.RazorpayKeySecret,
		logger.With("component", "payment_service"),
	)
	checkoutService := services.NewCheckoutService(
		orderStore,
		variantStore,
		gateway,
		walletService,
		rates,
		cfg.PendingOrderTTL(),
		logger.With("component", "checkout_service"),
	)
	otpService, err := services.NewOTPService(cacheProvider, emailSender, cfg.OTPSessionSecret, logger.With("component", "otp_service"))
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize otp service: %w", err)
	}

	h, err := handlers.New(handlers.Dependencies{
		Config:          cfg,
		DB:              database,
		PaymentService:  paymentService,
		CheckoutService: checkoutService,
		OTPService:      otpService,
		ShipmentService: shipmentService,
		OrderStore:      orderStore,
		PaymentLogStore: paymentLogStore,
		Logger:          logger,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		CacheProvider: cacheProvider,
		Handlers:      h,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	sentry.Flush(2 * time.Second)
}

// initSentry reports whether error and metric delivery is active. Running
// without a DSN is supported; every sentry call becomes a no-op.
func initSentry(cfg *config.Config) bool {
	if strings.TrimSpace(cfg.SentryDSN) == "" {
		return false
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
		EnableLogs:       true,
	})
	return err == nil
}

func newLogger(cfg *config.Config, sentryActive bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		console = slog.NewJSONHandler(os.Stdout, opts)
	default:
		console = tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		})
	}

	if !sentryActive {
		return slog.New(console)
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError},
	}.NewSentryHandler(context.Background())

	return slog.New(logging.MultiHandler(console, sentryHandler))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
