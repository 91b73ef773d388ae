package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/clovemart/clovemart/internal/razorpay"
	"github.com/clovemart/clovemart/internal/services"
)

const razorpaySignatureHeader = "X-Razorpay-Signature"

// PaymentWebhook receives gateway event deliveries. The body must be read
// raw: the signature covers the bytes exactly as transmitted.
//
// Response contract: 400 only for bad signatures and malformed payloads, 500
// only for missing secret or infrastructure failures. Everything else,
// including duplicates and unmatched orders, answers 200 so the gateway
// stops redelivering.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("failed to read webhook body", "error", err)
		h.writeError(w, r, http.StatusBadRequest, "Invalid webhook", "could not read request body")
		return
	}

	signature := r.Header.Get(razorpaySignatureHeader)

	result, err := h.paymentService.HandleWebhook(ctx, body, signature)
	if err != nil {
		switch {
		case errors.Is(err, razorpay.ErrSecretMissing):
			h.writeError(w, r, http.StatusInternalServerError, "Webhook handler not configured", "")
		case errors.Is(err, razorpay.ErrSignatureMismatch):
			logger.Warn("webhook signature rejected")
			h.writeError(w, r, http.StatusBadRequest, "Invalid signature", "")
		case errors.Is(err, services.ErrInvalidPayload):
			logger.Warn("webhook payload rejected", "error", err)
			h.writeError(w, r, http.StatusBadRequest, "Invalid payload", "")
		default:
			logger.Error("failed to process webhook", "error", err)
			h.writeError(w, r, http.StatusInternalServerError, "Processing failed", "")
		}
		return
	}

	h.writeJSON(w, r, http.StatusOK, result)
}
