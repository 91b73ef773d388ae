package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clovemart/clovemart/internal/services"
)

// PaymentCreateOrder validates a cart and returns the identifiers the
// payment widget needs. Business-rule violations answer 400 and leave no
// order behind.
func (h *Handlers) PaymentCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var input services.CreateOrderInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)).Decode(&input); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	input.UserID = userIDFromContext(ctx)

	result, err := h.checkoutService.CreateOrder(ctx, input)
	if err != nil {
		if errors.Is(err, services.ErrInvalidOrder) {
			h.writeError(w, r, http.StatusBadRequest, "Invalid order", err.Error())
			return
		}
		logger.Error("failed to create order", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Could not create order", "")
		return
	}

	h.writeJSON(w, r, http.StatusOK, result)
}
