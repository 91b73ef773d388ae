package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clovemart/clovemart/internal/models"
)

type WalletStore struct {
	pool *pgxpool.Pool
}

func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

func (s *WalletStore) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	var balance int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(balance, 0) FROM wallets WHERE user_id = $1
	`, userID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Deduct removes amount from the user's balance and writes the debit ledger
// row in one transaction. The conditional UPDATE rejects overdrafts; the
// unique (reference, type) index rejects a second settlement debit for the
// same order.
func (s *WalletStore) Deduct(ctx context.Context, userID uuid.UUID, amountPaise int, reference string) error {
	if amountPaise <= 0 {
		return fmt.Errorf("deduction amount must be positive, got %d", amountPaise)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	cmdTag, err := tx.Exec(ctx, `
		UPDATE wallets SET balance = balance - $1
		WHERE user_id = $2 AND balance >= $1
	`, amountPaise, userID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO wallet_transactions (user_id, type, amount, reference)
		VALUES ($1, $2, $3, $4)
	`, userID, models.WalletDebit, amountPaise, reference); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateDebit
		}
		return err
	}

	return tx.Commit(ctx)
}

// Credit adds funds back, used by return/refund flows and manual operator
// corrections.
func (s *WalletStore) Credit(ctx context.Context, userID uuid.UUID, amountPaise int, reference string) error {
	if amountPaise <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amountPaise)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO wallets (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + $2
	`, userID, amountPaise); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO wallet_transactions (user_id, type, amount, reference)
		VALUES ($1, $2, $3, $4)
	`, userID, models.WalletCredit, amountPaise, reference); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// HasDebitForOrder reports whether a settlement debit already references
// this order.
func (s *WalletStore) HasDebitForOrder(ctx context.Context, reference string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM wallet_transactions
			WHERE reference = $1 AND type = $2
		)
	`, reference, models.WalletDebit).Scan(&exists)
	return exists, err
}
