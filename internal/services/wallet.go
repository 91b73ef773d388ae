package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clovemart/clovemart/internal/db"
	"github.com/clovemart/clovemart/internal/logging"
)

type walletStore interface {
	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	Deduct(ctx context.Context, userID uuid.UUID, amountPaise int, reference string) error
	Credit(ctx context.Context, userID uuid.UUID, amountPaise int, reference string) error
	HasDebitForOrder(ctx context.Context, reference string) (bool, error)
}

// WalletService settles store-credit against paid orders. Settlement is
// deferred to payment confirmation so an abandoned checkout never touches
// the balance.
type WalletService struct {
	store  walletStore
	logger *slog.Logger
}

func NewWalletService(store walletStore, logger *slog.Logger) *WalletService {
	return &WalletService{
		store:  store,
		logger: logger,
	}
}

func (s *WalletService) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.Balance(ctx, userID)
}

// ValidateCredits checks that a requested credit application is covered by
// the user's current balance.
func (s *WalletService) ValidateCredits(ctx context.Context, userID uuid.UUID, requestedPaise int) error {
	if requestedPaise <= 0 {
		return fmt.Errorf("requested credits must be positive, got %d", requestedPaise)
	}
	balance, err := s.store.Balance(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to read wallet balance: %w", err)
	}
	if balance < requestedPaise {
		return fmt.Errorf("insufficient credits: balance %d, requested %d", balance, requestedPaise)
	}
	return nil
}

// SettleCredits deducts the credits recorded on a paid order exactly once.
// The ledger reference is the order id; a second settlement for the same
// order hits either the existing-debit check or the unique constraint and is
// treated as already settled.
func (s *WalletService) SettleCredits(ctx context.Context, order *db.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	credits := order.ProviderState.CreditsApplied
	if credits <= 0 {
		return nil
	}
	if order.UserID == nil {
		return fmt.Errorf("order %s has credits applied but no user", order.ID)
	}

	logger := logging.FromContext(ctx, s.logger)
	reference := order.ID.String()

	settled, err := s.store.HasDebitForOrder(ctx, reference)
	if err != nil {
		return fmt.Errorf("failed to check existing settlement: %w", err)
	}
	if settled {
		logger.Info("credits already settled", "order_id", order.ID, "credits", credits)
		return nil
	}

	err = s.store.Deduct(ctx, *order.UserID, credits, reference)
	switch {
	case errors.Is(err, db.ErrDuplicateDebit):
		logger.Info("credits already settled", "order_id", order.ID, "credits", credits)
		return nil
	case errors.Is(err, db.ErrInsufficientBalance):
		// The balance moved between checkout and settlement. Payment stays
		// confirmed; this is flagged for manual reconciliation.
		return fmt.Errorf("credit settlement failed for order %s: %w", order.ID, err)
	case err != nil:
		return fmt.Errorf("failed to settle credits for order %s: %w", order.ID, err)
	}

	logger.Info("credits settled", "order_id", order.ID, "user_id", *order.UserID, "credits", credits)
	return nil
}

// Refund returns the settled credits to the wallet, used by the refund flow.
func (s *WalletService) Refund(ctx context.Context, order *db.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	credits := order.ProviderState.CreditsApplied
	if credits <= 0 || order.UserID == nil {
		return nil
	}

	settled, err := s.store.HasDebitForOrder(ctx, order.ID.String())
	if err != nil {
		return fmt.Errorf("failed to check existing settlement: %w", err)
	}
	if !settled {
		return nil
	}

	return s.store.Credit(ctx, *order.UserID, credits, order.ID.String())
}
