// Package razorpay provides Razorpay webhook validation, event parsing and a
// thin gateway client.
package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrSecretMissing means the verifying secret is not configured. This is an
// operations failure (500-class), not an attacker signal, and callers must
// not conflate it with ErrSignatureMismatch.
var ErrSecretMissing = errors.New("signing secret is not configured")

// ErrSignatureMismatch means the claimed signature does not match the
// payload (400-class).
var ErrSignatureMismatch = errors.New("signature mismatch")

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// raw request body. The digest is computed over the bytes exactly as
// transmitted; parsing the JSON first would break it.
func VerifyWebhookSignature(body []byte, signature, secret string) error {
	if secret == "" {
		return ErrSecretMissing
	}
	if signature == "" {
		return ErrSignatureMismatch
	}
	return verify(body, signature, secret)
}

// VerifyPaymentSignature checks a client-submitted payment confirmation. Per
// the gateway's scheme the signed message is "<order_id>|<payment_id>".
func VerifyPaymentSignature(orderID, paymentID, signature, secret string) error {
	if secret == "" {
		return ErrSecretMissing
	}
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrSignatureMismatch
	}
	return verify([]byte(orderID+"|"+paymentID), signature, secret)
}

func verify(message []byte, signature, secret string) error {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	expected := mac.Sum(nil)

	claimed, err := hex.DecodeString(signature)
	if err != nil {
		return ErrSignatureMismatch
	}
	if !hmac.Equal(expected, claimed) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign computes the hex HMAC for a message. The signature scheme is shared
// with tests and tooling that need to fabricate valid deliveries.
func Sign(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
