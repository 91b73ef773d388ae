package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
)

// RequireAdmin guards the operator endpoints with a bearer token signed by
// the admin API secret.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.writeError(w, r, http.StatusUnauthorized, "Missing bearer token", "")
			return
		}

		if err := h.validateAdminToken(token); err != nil {
			h.loggerFromContext(r.Context()).Warn("admin token rejected", "error", err)
			h.writeError(w, r, http.StatusUnauthorized, "Invalid bearer token", "")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) validateAdminToken(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(h.config.AdminAPITokenSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("token is not valid")
	}
	return nil
}

// AdminGetOrder returns the order with its full payment audit trail.
func (h *Handlers) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid order id", "")
		return
	}

	order, err := h.orderStore.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, r, http.StatusNotFound, "Order not found", "")
			return
		}
		logger.Error("failed to load order", "error", err, "order_id", orderID)
		h.writeError(w, r, http.StatusInternalServerError, "Could not load order", "")
		return
	}

	logs, err := h.paymentLogStore.ListByOrder(ctx, orderID)
	if err != nil {
		logger.Error("failed to load payment logs", "error", err, "order_id", orderID)
		h.writeError(w, r, http.StatusInternalServerError, "Could not load payment logs", "")
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"order":        order,
		"payment_logs": logs,
	})
}

// AdminRetriggerShipment re-runs shipment creation for a paid order whose
// automatic attempt failed. Idempotent: an existing shipment is returned
// as-is.
func (h *Handlers) AdminRetriggerShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid order id", "")
		return
	}

	shipmentID, err := h.shipmentService.RetriggerShipment(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.writeError(w, r, http.StatusNotFound, "Order not found", "")
			return
		}
		logger.Error("failed to retrigger shipment", "error", err, "order_id", orderID)
		h.writeError(w, r, http.StatusInternalServerError, "Could not create shipment", err.Error())
		return
	}

	logger.Info("shipment retriggered", "order_id", orderID, "shipment_id", shipmentID)
	h.writeJSON(w, r, http.StatusOK, map[string]string{"shipment_id": shipmentID})
}
