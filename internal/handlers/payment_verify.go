package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clovemart/clovemart/internal/razorpay"
	"github.com/clovemart/clovemart/internal/services"
)

// PaymentVerify confirms a payment from the storefront's success callback.
// Uses the payment-variant signature; the webhook and this endpoint race
// safely, whichever lands second is a no-op.
func (h *Handlers) PaymentVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var input services.VerifyInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)).Decode(&input); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	result, err := h.paymentService.VerifyPayment(ctx, input)
	if err != nil {
		switch {
		case errors.Is(err, razorpay.ErrSecretMissing):
			h.writeError(w, r, http.StatusInternalServerError, "Verification not configured", "")
		case errors.Is(err, razorpay.ErrSignatureMismatch):
			logger.Warn("payment verification signature rejected",
				"razorpay_order_id", input.RazorpayOrderID, "razorpay_payment_id", input.RazorpayPaymentID)
			h.writeError(w, r, http.StatusBadRequest, "Invalid signature", "")
		case errors.Is(err, services.ErrVerificationRejected):
			h.writeError(w, r, http.StatusBadRequest, "Verification rejected", err.Error())
		default:
			logger.Error("failed to verify payment", "error", err)
			h.writeError(w, r, http.StatusInternalServerError, "Verification failed", "")
		}
		return
	}

	h.writeJSON(w, r, http.StatusOK, result)
}
