package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/clovemart/clovemart/internal/db"
)

func TestSettleCredits(t *testing.T) {
	t.Parallel()

	t.Run("deducts once", func(t *testing.T) {
		t.Parallel()
		order := pendingOrder("order_rzp1", 50000)
		order.ProviderState.CreditsApplied = 20000
		store := newFakeWalletStore()
		store.balances[*order.UserID] = 30000
		svc := NewWalletService(store, slog.New(slog.DiscardHandler))

		if err := svc.SettleCredits(context.Background(), order); err != nil {
			t.Fatalf("SettleCredits() error = %v", err)
		}
		if err := svc.SettleCredits(context.Background(), order); err != nil {
			t.Fatalf("SettleCredits() repeat error = %v", err)
		}
		if store.balances[*order.UserID] != 10000 {
			t.Errorf("balance = %d, want 10000", store.balances[*order.UserID])
		}
	})

	t.Run("no credits is a no-op", func(t *testing.T) {
		t.Parallel()
		order := pendingOrder("order_rzp1", 50000)
		store := newFakeWalletStore()
		svc := NewWalletService(store, slog.New(slog.DiscardHandler))

		if err := svc.SettleCredits(context.Background(), order); err != nil {
			t.Fatalf("SettleCredits() error = %v", err)
		}
		if len(store.debits) != 0 {
			t.Errorf("debits = %d, want 0", len(store.debits))
		}
	})

	t.Run("credits without user is an error", func(t *testing.T) {
		t.Parallel()
		order := pendingOrder("order_rzp1", 50000)
		order.UserID = nil
		order.ProviderState.CreditsApplied = 5000
		svc := NewWalletService(newFakeWalletStore(), slog.New(slog.DiscardHandler))

		if err := svc.SettleCredits(context.Background(), order); err == nil {
			t.Fatal("expected error for credits without user")
		}
	})

	t.Run("insufficient balance surfaces for reconciliation", func(t *testing.T) {
		t.Parallel()
		order := pendingOrder("order_rzp1", 50000)
		order.ProviderState.CreditsApplied = 20000
		store := newFakeWalletStore()
		store.balances[*order.UserID] = 5000
		svc := NewWalletService(store, slog.New(slog.DiscardHandler))

		if err := svc.SettleCredits(context.Background(), order); err == nil {
			t.Fatal("expected error for insufficient balance")
		}
		if store.balances[*order.UserID] != 5000 {
			t.Errorf("balance = %d, want untouched 5000", store.balances[*order.UserID])
		}
	})
}

func TestValidateCredits(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	store := newFakeWalletStore()
	store.balances[userID] = 10000
	svc := NewWalletService(store, slog.New(slog.DiscardHandler))

	tests := []struct {
		name      string
		requested int
		wantErr   bool
	}{
		{name: "covered", requested: 10000},
		{name: "partial", requested: 500},
		{name: "over balance", requested: 10001, wantErr: true},
		{name: "zero", requested: 0, wantErr: true},
		{name: "negative", requested: -5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := svc.ValidateCredits(context.Background(), userID, tt.requested)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCredits(%d) error = %v, wantErr %v", tt.requested, err, tt.wantErr)
			}
		})
	}
}

func TestWalletRefundReturnsSettledCredits(t *testing.T) {
	t.Parallel()

	order := pendingOrder("order_rzp1", 50000)
	order.PaymentStatus = db.PaymentPaid
	order.ProviderState.CreditsApplied = 20000
	store := newFakeWalletStore()
	store.balances[*order.UserID] = 20000
	svc := NewWalletService(store, slog.New(slog.DiscardHandler))

	if err := svc.SettleCredits(context.Background(), order); err != nil {
		t.Fatalf("SettleCredits() error = %v", err)
	}
	if err := svc.Refund(context.Background(), order); err != nil {
		t.Fatalf("Refund() error = %v", err)
	}
	if store.balances[*order.UserID] != 20000 {
		t.Errorf("balance = %d, want 20000 restored", store.balances[*order.UserID])
	}
}

func TestWalletRefundWithoutSettlementIsNoOp(t *testing.T) {
	t.Parallel()

	order := pendingOrder("order_rzp1", 50000)
	order.ProviderState.CreditsApplied = 20000
	store := newFakeWalletStore()
	svc := NewWalletService(store, slog.New(slog.DiscardHandler))

	if err := svc.Refund(context.Background(), order); err != nil {
		t.Fatalf("Refund() error = %v", err)
	}
	if store.balances[*order.UserID] != 0 {
		t.Errorf("balance = %d, want 0", store.balances[*order.UserID])
	}
}
