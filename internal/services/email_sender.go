package services

import (
	"context"
	"fmt"

	"github.com/clovemart/clovemart/internal/db"
	"github.com/clovemart/clovemart/internal/email"
)

type OrderEmailSender interface {
	SendOrderConfirmation(ctx context.Context, order *db.Order) error
	SendOTPCode(ctx context.Context, to, code string, minutesValid int) error
}

// ProviderEmailSender sends through the configured email provider.
type ProviderEmailSender struct {
	provider email.Provider
}

func NewProviderEmailSender(provider email.Provider) *ProviderEmailSender {
	return &ProviderEmailSender{provider: provider}
}

func (s *ProviderEmailSender) SendOrderConfirmation(ctx context.Context, order *db.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if order.Metadata.CustomerEmail == "" {
		return fmt.Errorf("order %s has no customer email", order.ID)
	}
	return s.provider.SendEmail(ctx, email.BuildOrderConfirmation(order))
}

func (s *ProviderEmailSender) SendOTPCode(ctx context.Context, to, code string, minutesValid int) error {
	return s.provider.SendEmail(ctx, email.BuildOTP(to, code, minutesValid))
}

// noopEmailSender is substituted when no email provider is configured.
type noopEmailSender struct{}

func (noopEmailSender) SendOrderConfirmation(context.Context, *db.Order) error {
	return nil
}

func (noopEmailSender) SendOTPCode(context.Context, string, string, int) error {
	return nil
}
