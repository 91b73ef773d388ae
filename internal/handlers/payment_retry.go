package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/clovemart/clovemart/internal/services"
)

// PaymentRetry reissues the widget identifiers for a pending or failed
// order while its payment window is open.
func (h *Handlers) PaymentRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	orderID, err := uuid.Parse(r.URL.Query().Get("order_id"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid order id", "")
		return
	}

	result, retryErr := h.checkoutService.Retry(ctx, orderID)
	if retryErr != nil {
		switch {
		case errors.Is(retryErr, services.ErrRetryWindowExpired):
			h.writeError(w, r, http.StatusBadRequest, "Payment window expired", "start a new checkout")
		case errors.Is(retryErr, services.ErrInvalidOrder):
			h.writeError(w, r, http.StatusBadRequest, "Invalid order", retryErr.Error())
		default:
			logger.Error("failed to retry payment", "error", retryErr, "order_id", orderID)
			h.writeError(w, r, http.StatusInternalServerError, "Could not retry payment", "")
		}
		return
	}

	h.writeJSON(w, r, http.StatusOK, result)
}
