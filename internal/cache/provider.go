package cache

// Package cache backs webhook-delivery deduplication and short-lived OTP
// codes with a pluggable key/value store.

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Provider is a TTL'd string key/value store.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// WebhookKey namespaces a processed webhook delivery by provider and
// idempotency key.
func WebhookKey(provider, idempotencyKey string) string {
	return fmt.Sprintf("webhook:%s:%s", provider, idempotencyKey)
}

// OTPKey namespaces a pending one-time code by the contact it was sent to.
func OTPKey(contact string) string {
	return "otp:" + contact
}
