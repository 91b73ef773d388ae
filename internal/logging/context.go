package logging

import (
	"context"
	"io"
	"log/slog"
)

type contextKey struct{}

// WithLogger returns a context that carries the provided logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, ensureLogger(logger))
}

// FromContext returns the request-scoped logger from context, falling back
// to the provided logger, then to a no-op logger.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return ensureLogger(fallback)
}

// WithOrder annotates the context logger with order identifiers so every
// line in a payment flow carries them.
func WithOrder(ctx context.Context, fallback *slog.Logger, orderID, orderNumber string) (context.Context, *slog.Logger) {
	logger := FromContext(ctx, fallback).With("order_id", orderID, "order_number", orderNumber)
	return WithLogger(ctx, logger), logger
}

func ensureLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
