package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clovemart/clovemart/internal/models"
)

// PaymentLogStore is append-only: rows are created on every transition
// attempt and never updated or deleted. The unique (provider,
// idempotency_key) index is what makes webhook processing exactly-once
// against concurrent redeliveries.
type PaymentLogStore struct {
	pool *pgxpool.Pool
}

func NewPaymentLogStore(pool *pgxpool.Pool) *PaymentLogStore {
	return &PaymentLogStore{pool: pool}
}

func (s *PaymentLogStore) Create(ctx context.Context, log *PaymentLog) error {
	var orderID any
	if log.OrderID != nil {
		orderID = *log.OrderID
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO payment_logs (
			order_id, provider, event_type, idempotency_key,
			provider_payment_id, status, payload_excerpt
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, orderID, log.Provider, log.EventType, log.IdempotencyKey,
		log.ProviderPaymentID, log.Status, log.PayloadExcerpt)

	var createdAt pgtype.Timestamptz
	if err := row.Scan(&log.ID, &createdAt); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEvent
		}
		return err
	}
	log.CreatedAt = createdAt.Time
	return nil
}

// HasPaidEvent reports whether a paid log row already exists for this
// provider payment id. It catches the same terminal state delivered twice
// under different idempotency keys.
func (s *PaymentLogStore) HasPaidEvent(ctx context.Context, providerPaymentID string) (bool, error) {
	if providerPaymentID == "" {
		return false, nil
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payment_logs
			WHERE provider_payment_id = $1 AND status = $2
		)
	`, providerPaymentID, models.LogStatusPaid).Scan(&exists)
	return exists, err
}

func (s *PaymentLogStore) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]PaymentLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, provider, event_type, idempotency_key,
		       provider_payment_id, status, payload_excerpt, created_at
		FROM payment_logs WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []PaymentLog
	for rows.Next() {
		var (
			log       PaymentLog
			rowOrder  pgtype.UUID
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&log.ID, &rowOrder, &log.Provider, &log.EventType,
			&log.IdempotencyKey, &log.ProviderPaymentID, &log.Status,
			&log.PayloadExcerpt, &createdAt); err != nil {
			return nil, err
		}
		if rowOrder.Valid {
			id := uuid.UUID(rowOrder.Bytes)
			log.OrderID = &id
		}
		log.CreatedAt = createdAt.Time
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
