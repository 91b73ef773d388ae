package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/clovemart/clovemart/internal/db"
	"github.com/clovemart/clovemart/internal/models"
	"github.com/clovemart/clovemart/internal/razorpay"
)

const (
	testWebhookSecret = "whsec_test_0123456789"
	testKeySecret     = "rzp_secret_0123456789"
)

func capturedBody(razorpayOrderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {
			"id": %q, "order_id": %q, "method": "upi", "amount": 50000
		}}}
	}`, paymentID, razorpayOrderID))
}

func failedBody(razorpayOrderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "payment.failed",
		"payload": {"payment": {"entity": {
			"id": %q, "order_id": %q, "error_description": "card declined"
		}}}
	}`, paymentID, razorpayOrderID))
}

func signedWebhook(body []byte) string {
	return razorpay.Sign(body, testWebhookSecret)
}

func newPaymentService(orders *fakeOrderStore, logs *fakeLogStore, fulfillment *fakeFulfillment) *PaymentService {
	return NewPaymentService(orders, logs, newFakeCacheProvider(), fulfillment, nil,
		testWebhookSecret, testKeySecret, slog.New(slog.DiscardHandler))
}

func TestHandleWebhookSignatureErrors(t *testing.T) {
	t.Parallel()

	body := capturedBody("order_rzp1", "pay_001")

	tests := []struct {
		name      string
		secret    string
		signature string
		wantErr   error
	}{
		{name: "missing secret", secret: "", signature: signedWebhook(body), wantErr: razorpay.ErrSecretMissing},
		{name: "bad signature", secret: testWebhookSecret, signature: razorpay.Sign(body, "wrong"), wantErr: razorpay.ErrSignatureMismatch},
		{name: "empty signature", secret: testWebhookSecret, signature: "", wantErr: razorpay.ErrSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := NewPaymentService(newFakeOrderStore(), newFakeLogStore(), newFakeCacheProvider(),
				&fakeFulfillment{}, nil, tt.secret, testKeySecret, slog.New(slog.DiscardHandler))

			_, err := svc.HandleWebhook(context.Background(), body, tt.signature)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("HandleWebhook() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestHandleWebhookMalformedPayload(t *testing.T) {
	t.Parallel()

	body := []byte(`{"not an event`)
	svc := newPaymentService(newFakeOrderStore(), newFakeLogStore(), &fakeFulfillment{})

	_, err := svc.HandleWebhook(context.Background(), body, signedWebhook(body))
	if !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("HandleWebhook() error = %v, want ErrInvalidPayload", err)
	}
}

func TestHandleWebhookCapturedMarksPaidAndRunsChain(t *testing.T) {
	t.Parallel()

	order := pendingOrder("order_rzp1", 50000)
	orders := newFakeOrderStore(order)
	logs := newFakeLogStore()
	fulfillment := &fakeFulfillment{}
	svc := newPaymentService(orders, logs, fulfillment)

	body := capturedBody("order_rzp1", "pay_001")
	result, err := svc.HandleWebhook(context.Background(), body, signedWebhook(body))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	stored := orders.orders[order.ID]
	if stored.PaymentStatus != db.PaymentPaid {
		t.Errorf("payment status = %s, want paid", stored.PaymentStatus)
	}
	if stored.ProviderState.RazorpayPaymentID != "pay_001" {
		t.Errorf("payment id = %s, want pay_001", stored.ProviderState.RazorpayPaymentID)
	}
	if stored.ProviderState.PaymentMethod != "upi" {
		t.Errorf("method = %s, want upi", stored.ProviderState.PaymentMethod)
	}
	if fulfillment.runCount() != 1 {
		t.Errorf("fulfillment runs = %d, want 1", fulfillment.runCount())
	}
	if got := len(logs.byStatus(models.LogStatusPaid)); got != 1 {
		t.Errorf("paid logs = %d, want 1", got)
	}
}

func TestHandleWebhookRedeliveryIsNoOp(t *testing.T) {
	t.Parallel()

	order := pendingOrder("order_rzp1", 50000)
	orders := newFakeOrderStore(order)
	logs := newFakeLogStore()
	fulfillment := &fakeFulfillment{}
	svc := newPaymentService(orders, logs, fulfillment)

	body := capturedBody("order_rzp1", "pay_001")
	signature := signedWebhook(body)

	for i := 0; i < 3; i++ {
		result, err := svc.HandleWebhook(context.Background(), body, signature)
		if err != nil {
			t.Fatalf("delivery %d: HandleWebhook() error = %v", i, err)
		}
		if !result.Success {
			t.Fatalf("delivery %d: result = %+v, want success", i, result)
		}
	}

	if orders.markPaidCalls != 1 {
		t.Errorf("MarkPaid calls = %d, want 1", orders.markPaidCalls)
	}
	if fulfillment.runCount() != 1 {
		t.Errorf("fulfillment runs = %d, want 1", fulfillment.runCount())
	}
}

func TestHandleWebhookRedeliveryWithoutCache(t *testing.T) {
	t.Parallel()

	// The authoritative guard is the payment log, not the cache.
	order := pendingOrder("order_rzp1", 50000)
	orders := newFakeOrderStore(order)
	logs := newFakeLogStore()
	fulfillment := &fakeFulfillment{}
	svc := NewPaymentService(orders, logs, nil, fulfillment, nil,
		testWebhookSecret, testKeySecret, slog.New(slog.DiscardHandler))

	body := capturedBody("order_rzp1", "pay_001")
	signature := signedWebhook(body)

	for i := 0; i < 2; i++ {
		if _, err := svc.HandleWebhook(context.Background(), body, signature); err != nil {
			t.Fatalf("delivery %d: HandleWebhook() error = %v", i, err)
		}
	}
	if orders.markPaidCalls != 1 {
		t.Errorf("MarkPaid calls = %d, want 1", orders.markPaidCalls)
	}
}

func TestHandleWebhookSameTerminalStateDifferentDelivery(t *testing.T) {
	t.Parallel()

	// Two distinct webhook bodies (captured then authorized) for the same
	// payment id must not confirm twice.
	order := pendingOrder("order_rzp1", 50000)
	orders := newFakeOrderStore(order)
	fulfillment := &fakeFulfillment{}
	svc := newPaymentService(orders, newFakeLogStore(), fulfillment)

	captured := capturedBody("order_rzp1", "pay_001")
	if _, err := svc.HandleWebhook(context.Background(), captured, signedWebhook(captured)); err != nil {
		t.Fatalf("HandleWebhook(captured) error = %v", err)
	}

	authorized := []byte(`{
		"event": "payment.authorized",
		"payload": {"payment": {"entity": {"id": "pay_001", "order_id": "order_rzp1", "method": "upi"}}}
	}`)
	result, err := svc.HandleWebhook(context.Background(), authorized, signedWebhook(authorized))
	if err != nil {
		t.Fatalf("HandleWebhook(authorized) error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	if orders.markPaidCalls != 1 {
		t.Errorf("MarkPaid calls = %d, want 1", orders.markPaidCalls)
	}
	if fulfillment.runCount() != 1 {
		t.Errorf("fulfillment runs = %d, want 1", fulfillment.runCount())
	}
}

func TestHandleWebhookOrderNotFoundWritesIncident(t *testing.T) {
	t.Parallel()

	logs := newFakeLogStore()
	svc := newPaymentService(newFakeOrderStore(), logs, &fakeFulfillment{})

	body := capturedBody("order_unknown", "pay_404")
	result, err := svc.HandleWebhook(context.Background(), body, signedWebhook(body))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if result.Success {
		t.Fatalf("result = %+v, want success=false", result)
	}

	incidents := logs.byStatus(models.LogStatusIncident)
	if len(incidents) != 1 {
		t.Fatalf("incident logs = %d, want 1", len(incidents))
	}
	if incidents[0].OrderID != nil {
		t.Errorf("incident order id = %v, want nil", incidents[0].OrderID)
	}
	if incidents[0].ProviderPaymentID != "pay_404" {
		t.Errorf("incident payment id = %s, want pay_404", incidents[0].ProviderPaymentID)
	}
}

func TestHandleWebhookFailedEvent(t *testing.T) {
	t.Parallel()

	order := pendingOrder("order_rzp1", 50000)
	orders := newFakeOrderStore(order)
	logs := newFakeLogStore()
	fulfillment := &fakeFulfillment{}
	svc := newPaymentService(orders, logs, fulfillment)

	body := failedBody("order_rzp1", "pay_001")
	result, err := svc.HandleWebhook(context.Background(), body, signedWebhook(body))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	stored := orders.orders[order.ID]
	if stored.PaymentStatus != db.PaymentFailed {
		t.Errorf("payment status = %s, want failed", stored.PaymentStatus)
	}
	if stored.ProviderState.FailureReason != "card declined" {
		t.Errorf("failure reason = %q", stored.ProviderState.FailureReason)
	}
	if stored.ProviderState.PaymentAttempts != 1 {
		t.Errorf("payment attempts = %d, want 1", stored.ProviderState.PaymentAttempts)
	}
	if fulfillment.runCount() != 0 {
		t.Errorf("fulfillment runs = %d, want 0", fulfillment.runCount())
	}
}

func TestHandleWebhookFailedAfterPaidDoesNotDowngrade(t *testing.T) {
	t.Parallel()

	order := pendingOrder("order_rzp1", 50000)
	orders := newFakeOrderStore(order)
	svc := newPaymentService(orders, newFakeLogStore(), &fakeFulfillment{})

	captured := capturedBody("order_rzp1", "pay_001")
	if _, err := svc.HandleWebhook(context.Background(), captured, signedWebhook(captured)); err != nil {
		t.Fatalf("HandleWebhook(captured) error = %v", err)
	}

	failed := failedBody("order_rzp1", "pay_002")
	result, err := svc.HandleWebhook(context.Background(), failed, signedWebhook(failed))
	if err != nil {
		t.Fatalf("HandleWebhook(failed) error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	if got := orders.orders[order.ID].PaymentStatus; got != db.PaymentPaid {
		t.Errorf("payment status = %s, want paid to survive late failure event", got)
	}
}

func TestHandleWebhookRefundEvent(t *testing.T) {
	t.Parallel()

	order := pendingOrder("order_rzp1", 50000)
	order.PaymentStatus = db.PaymentPaid
	order.OrderStatus = db.OrderPaid
	orders := newFakeOrderStore(order)
	logs := newFakeLogStore()
	svc := newPaymentService(orders, logs, &fakeFulfillment{})

	body := []byte(`{
		"event": "refund.processed",
		"payload": {
			"payment": {"entity": {"id": "pay_001", "order_id": "order_rzp1"}},
			"refund": {"entity": {"id": "rfnd_001", "payment_id": "pay_001", "amount": 50000}}
		}
	}`)
	result, err := svc.HandleWebhook(context.Background(), body, signedWebhook(body))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	stored := orders.orders[order.ID]
	if stored.PaymentStatus != db.PaymentRefunded {
		t.Errorf("payment status = %s, want refunded", stored.PaymentStatus)
	}
	if stored.ProviderState.RazorpayRefundID != "rfnd_001" {
		t.Errorf("refund id = %s, want rfnd_001", stored.ProviderState.RazorpayRefundID)
	}
	if stored.ProviderState.RefundAmount != 50000 {
		t.Errorf("refund amount = %d, want 50000", stored.ProviderState.RefundAmount)
	}
}

func TestHandleWebhookUnknownEventIsAuditedNotApplied(t *testing.T) {
	t.Parallel()

	order := pendingOrder("order_rzp1", 50000)
	orders := newFakeOrderStore(order)
	logs := newFakeLogStore()
	svc := newPaymentService(orders, logs, &fakeFulfillment{})

	body := []byte(`{
		"event": "payment.downtime.started",
		"payload": {"payment": {"entity": {"id": "pay_001", "order_id": "order_rzp1"}}}
	}`)
	result, err := svc.HandleWebhook(context.Background(), body, signedWebhook(body))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	if got := orders.orders[order.ID].PaymentStatus; got != db.PaymentPending {
		t.Errorf("payment status = %s, want pending untouched", got)
	}
	if got := len(logs.byStatus(models.LogStatusUnknown)); got != 1 {
		t.Errorf("unknown logs = %d, want 1", got)
	}
}

func TestVerifyPayment(t *testing.T) {
	t.Parallel()

	t.Run("valid signature confirms order", func(t *testing.T) {
		t.Parallel()
		order := pendingOrder("order_rzp1", 50000)
		orders := newFakeOrderStore(order)
		fulfillment := &fakeFulfillment{}
		svc := newPaymentService(orders, newFakeLogStore(), fulfillment)

		result, err := svc.VerifyPayment(context.Background(), VerifyInput{
			RazorpayOrderID:   "order_rzp1",
			RazorpayPaymentID: "pay_001",
			RazorpaySignature: razorpay.Sign([]byte("order_rzp1|pay_001"), testKeySecret),
		})
		if err != nil {
			t.Fatalf("VerifyPayment() error = %v", err)
		}
		if !result.Success {
			t.Fatalf("result = %+v, want success", result)
		}
		if got := orders.orders[order.ID].PaymentStatus; got != db.PaymentPaid {
			t.Errorf("payment status = %s, want paid", got)
		}
		if fulfillment.runCount() != 1 {
			t.Errorf("fulfillment runs = %d, want 1", fulfillment.runCount())
		}
	})

	t.Run("tampered signature rejected", func(t *testing.T) {
		t.Parallel()
		order := pendingOrder("order_rzp1", 50000)
		svc := newPaymentService(newFakeOrderStore(order), newFakeLogStore(), &fakeFulfillment{})

		_, err := svc.VerifyPayment(context.Background(), VerifyInput{
			RazorpayOrderID:   "order_rzp1",
			RazorpayPaymentID: "pay_001",
			RazorpaySignature: razorpay.Sign([]byte("order_rzp1|pay_999"), testKeySecret),
		})
		if !errors.Is(err, razorpay.ErrSignatureMismatch) {
			t.Fatalf("VerifyPayment() error = %v, want ErrSignatureMismatch", err)
		}
	})

	t.Run("verify after webhook is no-op", func(t *testing.T) {
		t.Parallel()
		order := pendingOrder("order_rzp1", 50000)
		orders := newFakeOrderStore(order)
		fulfillment := &fakeFulfillment{}
		svc := newPaymentService(orders, newFakeLogStore(), fulfillment)

		body := capturedBody("order_rzp1", "pay_001")
		if _, err := svc.HandleWebhook(context.Background(), body, signedWebhook(body)); err != nil {
			t.Fatalf("HandleWebhook() error = %v", err)
		}

		result, err := svc.VerifyPayment(context.Background(), VerifyInput{
			RazorpayOrderID:   "order_rzp1",
			RazorpayPaymentID: "pay_001",
			RazorpaySignature: razorpay.Sign([]byte("order_rzp1|pay_001"), testKeySecret),
		})
		if err != nil {
			t.Fatalf("VerifyPayment() error = %v", err)
		}
		if !result.Success {
			t.Fatalf("result = %+v, want success", result)
		}
		if orders.markPaidCalls != 1 {
			t.Errorf("MarkPaid calls = %d, want 1", orders.markPaidCalls)
		}
		if fulfillment.runCount() != 1 {
			t.Errorf("fulfillment runs = %d, want 1", fulfillment.runCount())
		}
	})

	t.Run("unknown gateway order rejected", func(t *testing.T) {
		t.Parallel()
		svc := newPaymentService(newFakeOrderStore(), newFakeLogStore(), &fakeFulfillment{})

		_, err := svc.VerifyPayment(context.Background(), VerifyInput{
			RazorpayOrderID:   "order_missing",
			RazorpayPaymentID: "pay_001",
			RazorpaySignature: razorpay.Sign([]byte("order_missing|pay_001"), testKeySecret),
		})
		if !errors.Is(err, ErrVerificationRejected) {
			t.Fatalf("VerifyPayment() error = %v, want ErrVerificationRejected", err)
		}
	})
}

func TestVerifyCreditsOnly(t *testing.T) {
	t.Parallel()

	t.Run("fully covered order confirms", func(t *testing.T) {
		t.Parallel()
		order := pendingOrder("", 50000)
		order.ProviderState.CreditsApplied = 50000
		orders := newFakeOrderStore(order)
		fulfillment := &fakeFulfillment{}
		svc := newPaymentService(orders, newFakeLogStore(), fulfillment)

		result, err := svc.VerifyPayment(context.Background(), VerifyInput{OrderID: order.ID.String()})
		if err != nil {
			t.Fatalf("VerifyPayment() error = %v", err)
		}
		if !result.Success {
			t.Fatalf("result = %+v, want success", result)
		}
		stored := orders.orders[order.ID]
		if stored.PaymentStatus != db.PaymentPaid {
			t.Errorf("payment status = %s, want paid", stored.PaymentStatus)
		}
		if stored.ProviderState.PaymentMethod != "credits" {
			t.Errorf("method = %s, want credits", stored.ProviderState.PaymentMethod)
		}
		if fulfillment.runCount() != 1 {
			t.Errorf("fulfillment runs = %d, want 1", fulfillment.runCount())
		}
	})

	t.Run("partially covered order rejected", func(t *testing.T) {
		t.Parallel()
		order := pendingOrder("order_rzp1", 50000)
		order.ProviderState.CreditsApplied = 10000
		svc := newPaymentService(newFakeOrderStore(order), newFakeLogStore(), &fakeFulfillment{})

		_, err := svc.VerifyPayment(context.Background(), VerifyInput{OrderID: order.ID.String()})
		if !errors.Is(err, ErrVerificationRejected) {
			t.Fatalf("VerifyPayment() error = %v, want ErrVerificationRejected", err)
		}
	})

	t.Run("repeat confirm is no-op", func(t *testing.T) {
		t.Parallel()
		order := pendingOrder("", 50000)
		order.ProviderState.CreditsApplied = 50000
		orders := newFakeOrderStore(order)
		svc := newPaymentService(orders, newFakeLogStore(), &fakeFulfillment{})

		for i := 0; i < 2; i++ {
			result, err := svc.VerifyPayment(context.Background(), VerifyInput{OrderID: order.ID.String()})
			if err != nil {
				t.Fatalf("attempt %d: VerifyPayment() error = %v", i, err)
			}
			if !result.Success {
				t.Fatalf("attempt %d: result = %+v, want success", i, result)
			}
		}
		if orders.markPaidCalls != 1 {
			t.Errorf("MarkPaid calls = %d, want 1", orders.markPaidCalls)
		}
	})
}
