package models

import (
	"time"

	"github.com/google/uuid"
)

type WalletTransactionType string

const (
	WalletDebit  WalletTransactionType = "debit"
	WalletCredit WalletTransactionType = "credit"
)

// WalletTransaction is one ledger entry against a user's store-credit
// balance. Reference carries the order id for settlement debits; at most one
// debit may exist per reference.
type WalletTransaction struct {
	ID          uuid.UUID             `json:"id"`
	UserID      uuid.UUID             `json:"user_id"`
	Type        WalletTransactionType `json:"type"`
	AmountPaise int                   `json:"amount"`
	Reference   string                `json:"reference"`
	CreatedAt   time.Time             `json:"created_at"`
}
