package db

// Package db provides database connection and store types.

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvalidStatusTransition is returned when a conditional status update
// matched no row: the order is not in a state the transition applies to.
var ErrInvalidStatusTransition = errors.New("invalid order status transition")

// ErrDuplicateEvent is returned when a payment log insert hits the unique
// (provider, idempotency_key) constraint: this delivery was already
// processed by a committed invocation.
var ErrDuplicateEvent = errors.New("payment event already processed")

// ErrInsufficientBalance is returned when a wallet deduction would drive the
// balance negative.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// ErrDuplicateDebit is returned when a settlement debit already exists for
// the same order reference.
var ErrDuplicateDebit = errors.New("debit already recorded for reference")

func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.ConnConfig.Tracer = newQueryTracer()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
