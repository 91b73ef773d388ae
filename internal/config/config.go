package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	RazorpayKeyID         string `env:"RAZORPAY_KEY_ID,required" validate:"required"`
	RazorpayKeySecret     string `env:"RAZORPAY_KEY_SECRET,required" validate:"required"`
	RazorpayWebhookSecret string `env:"RAZORPAY_WEBHOOK_SECRET"`

	ShiprocketEmail         string `env:"SHIPROCKET_EMAIL"`
	ShiprocketPassword      string `env:"SHIPROCKET_PASSWORD"`
	ShipmentCreationEnabled bool   `env:"SHIPMENT_CREATION_ENABLED" envDefault:"false"`
	MaxPickupRetries        int    `env:"MAX_PICKUP_RETRIES" envDefault:"3" validate:"min=0,max=10"`
	PendingOrderTTLMinutes  int    `env:"PENDING_ORDER_TTL_MINUTES" envDefault:"30" validate:"min=1"`

	ShippingRatesPath string `env:"SHIPPING_RATES_PATH" envDefault:"shipping_rates.yaml" validate:"required"`

	ResendAPIKey string `env:"RESEND_API_KEY"`
	EmailFrom    string `env:"EMAIL_FROM" envDefault:"orders@clovemart.in" validate:"omitempty,email"`

	AdminAPITokenSecret string `env:"ADMIN_API_TOKEN_SECRET,required" validate:"required,min=32"`
	OTPSessionSecret    string `env:"OTP_SESSION_SECRET,required" validate:"required,min=32"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	SentryDSN string     `env:"SENTRY_DSN"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	// Missing .env is fine; env vars win in deployed environments.
	_ = godotenv.Load()

	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasShiprocketEmail := strings.TrimSpace(c.ShiprocketEmail) != ""
	hasShiprocketPassword := strings.TrimSpace(c.ShiprocketPassword) != ""
	if hasShiprocketEmail != hasShiprocketPassword {
		return fmt.Errorf("SHIPROCKET_EMAIL and SHIPROCKET_PASSWORD must be set together")
	}

	if c.ShipmentCreationEnabled && !hasShiprocketEmail {
		return fmt.Errorf("SHIPMENT_CREATION_ENABLED requires Shiprocket credentials")
	}

	return nil
}

// PendingOrderTTL is how long a pending order may reuse its gateway order.
func (c *Config) PendingOrderTTL() time.Duration {
	return time.Duration(c.PendingOrderTTLMinutes) * time.Minute
}
