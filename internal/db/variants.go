package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type VariantStore struct {
	pool *pgxpool.Pool
}

func NewVariantStore(pool *pgxpool.Pool) *VariantStore {
	return &VariantStore{pool: pool}
}

func (s *VariantStore) GetBySKU(ctx context.Context, sku string) (*Variant, error) {
	var variant Variant
	err := s.pool.QueryRow(ctx, `
		SELECT id, sku, price, stock FROM variants WHERE sku = $1
	`, sku).Scan(&variant.ID, &variant.SKU, &variant.PricePaise, &variant.Stock)
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// DecrementStock subtracts quantity from a variant's stock, floored at
// zero, and returns the stock before and after. The row lock keeps the
// read-modify-write atomic against concurrent decrements.
func (s *VariantStore) DecrementStock(ctx context.Context, variantID uuid.UUID, quantity int) (before, after int, err error) {
	err = s.pool.QueryRow(ctx, `
		WITH current AS (
			SELECT stock FROM variants WHERE id = $1 FOR UPDATE
		)
		UPDATE variants v
		SET stock = GREATEST(v.stock - $2, 0)
		FROM current
		WHERE v.id = $1
		RETURNING current.stock, v.stock
	`, variantID, quantity).Scan(&before, &after)
	return before, after, err
}
