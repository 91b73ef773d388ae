package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clovemart/clovemart/internal/services"
)

type otpRequestBody struct {
	Email string `json:"email"`
}

type otpVerifyBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// OTPRequest emails a one-time login code. The response does not reveal
// whether the address is known.
func (h *Handlers) OTPRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var body otpRequestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)).Decode(&body); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	if err := h.otpService.RequestCode(ctx, body.Email); err != nil {
		if errors.Is(err, services.ErrOTPInvalidEmail) {
			h.writeError(w, r, http.StatusBadRequest, "A valid email address is required", "")
			return
		}
		logger.Error("failed to send login code", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Could not send login code", "")
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{"message": "Login code sent"})
}

// OTPVerify exchanges a valid code for a session token.
func (h *Handlers) OTPVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	var body otpVerifyBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)).Decode(&body); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	token, err := h.otpService.VerifyCode(ctx, body.Email, body.Code)
	if err != nil {
		if errors.Is(err, services.ErrOTPInvalid) {
			h.writeError(w, r, http.StatusUnauthorized, "Invalid or expired code", "")
			return
		}
		logger.Error("failed to verify login code", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "Could not verify login code", "")
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{"token": token})
}
