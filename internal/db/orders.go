package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clovemart/clovemart/internal/models"
)

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `
	id, order_number, user_id, payment_status, order_status,
	provider_state, metadata, subtotal, shipping_fee, total_amount,
	internal_shipping_cost, shiprocket_shipment_id,
	created_at, paid_at, refunded_at
`

// Create inserts the order row and its items in one transaction. The order
// number comes from a database sequence so it is gapless per instance and
// safe under concurrent checkouts.
func (s *OrderStore) Create(ctx context.Context, order *Order) error {
	stateJSON, err := json.Marshal(order.ProviderState)
	if err != nil {
		return fmt.Errorf("failed to encode provider state: %w", err)
	}
	metadataJSON, err := json.Marshal(order.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var userID any
	if order.UserID != nil {
		userID = *order.UserID
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO orders (
			user_id, payment_status, order_status, provider_state, metadata,
			subtotal, shipping_fee, total_amount, internal_shipping_cost
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, order_number, created_at
	`, userID, order.PaymentStatus, order.OrderStatus, stateJSON, metadataJSON,
		order.SubtotalPaise, order.ShippingFeePaise, order.TotalPaise, order.InternalShippingCost)

	var createdAt pgtype.Timestamptz
	if err := row.Scan(&order.ID, &order.OrderNumber, &createdAt); err != nil {
		return err
	}
	order.CreatedAt = createdAt.Time

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		if err := tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, sku, variant_id, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, item.OrderID, item.SKU, item.VariantID, item.Quantity, item.UnitPricePaise, item.SubtotalPaise).Scan(&item.ID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return s.scanOrder(ctx, row)
}

// GetByProviderOrderID locates an order by the gateway order id recorded in
// its provider state.
func (s *OrderStore) GetByProviderOrderID(ctx context.Context, razorpayOrderID string) (*Order, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE provider_state->>'razorpay_order_id' = $1
	`, razorpayOrderID)
	return s.scanOrder(ctx, row)
}

// MarkPaid transitions an order to paid. The WHERE clause makes the
// transition idempotent under redelivery: a second captured event for an
// already-paid order matches no row and surfaces ErrInvalidStatusTransition,
// which callers treat as already-processed.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, paymentID, method, idempotencyKey string) error {
	patch, err := json.Marshal(map[string]string{
		"razorpay_payment_id": paymentID,
		"payment_method":      method,
		"idempotency_key":     idempotencyKey,
	})
	if err != nil {
		return err
	}

	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = $1, order_status = $2, paid_at = NOW(),
		    provider_state = provider_state || $3::jsonb
		WHERE id = $4 AND payment_status IN ('pending', 'failed')
	`, PaymentPaid, OrderPaid, patch, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/failed", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkFailed records a failed payment attempt. The order row is never
// deleted and a paid order is never downgraded.
func (s *OrderStore) MarkFailed(ctx context.Context, orderID uuid.UUID, reason, idempotencyKey string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = $1,
		    provider_state = jsonb_set(
		        provider_state || jsonb_build_object('failure_reason', $2::text, 'idempotency_key', $3::text),
		        '{payment_attempts}',
		        to_jsonb(COALESCE((provider_state->>'payment_attempts')::int, 0) + 1)
		    )
		WHERE id = $4 AND payment_status IN ('pending', 'failed')
	`, PaymentFailed, reason, idempotencyKey, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/failed", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *OrderStore) MarkRefunded(ctx context.Context, orderID uuid.UUID, refundID string, amountPaise int) error {
	patch, err := json.Marshal(map[string]any{
		"razorpay_refund_id": refundID,
		"refund_amount":      amountPaise,
	})
	if err != nil {
		return err
	}

	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET payment_status = $1, refunded_at = NOW(),
		    provider_state = provider_state || $2::jsonb
		WHERE id = $3 AND payment_status = 'paid'
	`, PaymentRefunded, patch, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected paid", ErrInvalidStatusTransition)
	}
	return nil
}

// SetGatewayOrder records the gateway order id and the window within which
// the checkout widget may reuse it.
func (s *OrderStore) SetGatewayOrder(ctx context.Context, orderID uuid.UUID, razorpayOrderID string, expiresAt time.Time) error {
	patch, err := json.Marshal(map[string]any{
		"razorpay_order_id":  razorpayOrderID,
		"pending_expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET provider_state = provider_state || $1::jsonb
		WHERE id = $2 AND payment_status IN ('pending', 'failed')
	`, patch, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/failed", ErrInvalidStatusTransition)
	}
	return nil
}

// SetInternalShippingCost persists the computed cost on the order and inside
// the metadata snapshot.
func (s *OrderStore) SetInternalShippingCost(ctx context.Context, orderID uuid.UUID, costPaise int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET internal_shipping_cost = $1,
		    metadata = jsonb_set(metadata, '{shipping_cost}', to_jsonb($1::int))
		WHERE id = $2
	`, costPaise, orderID)
	return err
}

// SetShipmentID stores the shipment reference; it only writes when no
// shipment is recorded yet, keeping retriggers idempotent.
func (s *OrderStore) SetShipmentID(ctx context.Context, orderID uuid.UUID, shipmentID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET shiprocket_shipment_id = $1
		WHERE id = $2 AND shiprocket_shipment_id IS NULL
	`, shipmentID, orderID)
	return err
}

func (s *OrderStore) ItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, sku, variant_id, quantity, unit_price, subtotal
		FROM order_items WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var item OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.SKU, &item.VariantID,
			&item.Quantity, &item.UnitPricePaise, &item.SubtotalPaise); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *OrderStore) scanOrder(ctx context.Context, row pgx.Row) (*Order, error) {
	var (
		order          Order
		userID         pgtype.UUID
		stateJSON      []byte
		metadataJSON   []byte
		shipmentID     pgtype.Text
		createdAt      pgtype.Timestamptz
		paidAt         pgtype.Timestamptz
		refundedAt     pgtype.Timestamptz
		paymentStatus  string
		orderStatus    string
	)

	if err := row.Scan(
		&order.ID, &order.OrderNumber, &userID, &paymentStatus, &orderStatus,
		&stateJSON, &metadataJSON, &order.SubtotalPaise, &order.ShippingFeePaise,
		&order.TotalPaise, &order.InternalShippingCost, &shipmentID,
		&createdAt, &paidAt, &refundedAt,
	); err != nil {
		return nil, err
	}

	order.PaymentStatus = models.PaymentStatus(paymentStatus)
	order.OrderStatus = models.OrderStatus(orderStatus)
	if userID.Valid {
		id := uuid.UUID(userID.Bytes)
		order.UserID = &id
	}
	if shipmentID.Valid {
		order.ShiprocketShipmentID = shipmentID.String
	}
	order.CreatedAt = createdAt.Time
	if paidAt.Valid {
		order.PaidAt = paidAt.Time
	}
	if refundedAt.Valid {
		order.RefundedAt = refundedAt.Time
	}

	if len(stateJSON) > 0 {
		if err := json.Unmarshal(stateJSON, &order.ProviderState); err != nil {
			return nil, fmt.Errorf("failed to decode provider state: %w", err)
		}
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &order.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	items, err := s.ItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return &order, nil
}
