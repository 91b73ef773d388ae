package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/clovemart/clovemart/internal/cache"
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

func newOTPService(t *testing.T, emailSender OrderEmailSender) (*OTPService, *fakeCacheProvider) {
	t.Helper()
	cacheProvider := newFakeCacheProvider()
	svc, err := NewOTPService(cacheProvider, emailSender, testSessionSecret, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewOTPService() error = %v", err)
	}
	return svc, cacheProvider
}

func TestNewOTPServiceRejectsShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewOTPService(newFakeCacheProvider(), nil, "short", slog.New(slog.DiscardHandler)); err == nil {
		t.Fatal("expected error for short session secret")
	}
}

func TestOTPRequestAndVerify(t *testing.T) {
	t.Parallel()

	emailSender := newFakeEmailSender()
	svc, _ := newOTPService(t, emailSender)
	ctx := context.Background()

	if err := svc.RequestCode(ctx, "Asha@Example.com"); err != nil {
		t.Fatalf("RequestCode() error = %v", err)
	}

	code := emailSender.otpCodes["asha@example.com"]
	if len(code) != otpLength {
		t.Fatalf("code = %q, want %d digits", code, otpLength)
	}

	token, err := svc.VerifyCode(ctx, "asha@example.com", code)
	if err != nil {
		t.Fatalf("VerifyCode() error = %v", err)
	}
	if token == "" {
		t.Fatal("empty session token")
	}

	subject, err := svc.ValidateSessionToken(token)
	if err != nil {
		t.Fatalf("ValidateSessionToken() error = %v", err)
	}
	if subject != "asha@example.com" {
		t.Errorf("subject = %s, want asha@example.com", subject)
	}
}

func TestOTPCodeIsSingleUse(t *testing.T) {
	t.Parallel()

	emailSender := newFakeEmailSender()
	svc, _ := newOTPService(t, emailSender)
	ctx := context.Background()

	if err := svc.RequestCode(ctx, "asha@example.com"); err != nil {
		t.Fatalf("RequestCode() error = %v", err)
	}
	code := emailSender.otpCodes["asha@example.com"]

	if _, err := svc.VerifyCode(ctx, "asha@example.com", code); err != nil {
		t.Fatalf("VerifyCode() error = %v", err)
	}
	if _, err := svc.VerifyCode(ctx, "asha@example.com", code); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("second VerifyCode() error = %v, want ErrOTPInvalid", err)
	}
}

func TestOTPVerifyRejections(t *testing.T) {
	t.Parallel()

	emailSender := newFakeEmailSender()
	svc, cacheProvider := newOTPService(t, emailSender)
	ctx := context.Background()

	if err := svc.RequestCode(ctx, "asha@example.com"); err != nil {
		t.Fatalf("RequestCode() error = %v", err)
	}

	tests := []struct {
		name  string
		email string
		code  string
	}{
		{name: "wrong code", email: "asha@example.com", code: "000000"},
		{name: "no pending code", email: "other@example.com", code: "123456"},
		{name: "empty code", email: "asha@example.com", code: ""},
		{name: "empty email", email: "", code: "123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.VerifyCode(ctx, tt.email, tt.code); !errors.Is(err, ErrOTPInvalid) {
				t.Fatalf("VerifyCode() error = %v, want ErrOTPInvalid", err)
			}
		})
	}

	// The stored code survives failed attempts.
	if _, err := cacheProvider.Get(ctx, cache.OTPKey("asha@example.com")); err != nil {
		t.Errorf("code missing after failed attempts: %v", err)
	}
}

func TestOTPRequestRejectsBadEmail(t *testing.T) {
	t.Parallel()

	svc, _ := newOTPService(t, newFakeEmailSender())

	for _, email := range []string{"", "no-at-sign", "two words@example.com"} {
		if err := svc.RequestCode(context.Background(), email); !errors.Is(err, ErrOTPInvalidEmail) {
			t.Errorf("RequestCode(%q) error = %v, want ErrOTPInvalidEmail", email, err)
		}
	}
}

func TestValidateSessionTokenRejections(t *testing.T) {
	t.Parallel()

	svc, _ := newOTPService(t, newFakeEmailSender())

	t.Run("garbage token", func(t *testing.T) {
		t.Parallel()
		if _, err := svc.ValidateSessionToken("not.a.token"); !errors.Is(err, ErrOTPInvalid) {
			t.Fatalf("error = %v, want ErrOTPInvalid", err)
		}
	})

	t.Run("expired token", func(t *testing.T) {
		t.Parallel()
		expiredSvc, _ := newOTPService(t, newFakeEmailSender())
		expiredSvc.now = func() time.Time { return time.Now().Add(-60 * 24 * time.Hour) }

		token, err := expiredSvc.issueSessionToken("asha@example.com")
		if err != nil {
			t.Fatalf("issueSessionToken() error = %v", err)
		}
		if _, err := svc.ValidateSessionToken(token); !errors.Is(err, ErrOTPInvalid) {
			t.Fatalf("error = %v, want ErrOTPInvalid for expired token", err)
		}
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		t.Parallel()
		otherSvc, err := NewOTPService(newFakeCacheProvider(), nil, strings.Repeat("x", 32), slog.New(slog.DiscardHandler))
		if err != nil {
			t.Fatalf("NewOTPService() error = %v", err)
		}
		token, err := otherSvc.issueSessionToken("asha@example.com")
		if err != nil {
			t.Fatalf("issueSessionToken() error = %v", err)
		}
		if _, err := svc.ValidateSessionToken(token); !errors.Is(err, ErrOTPInvalid) {
			t.Fatalf("error = %v, want ErrOTPInvalid for wrong secret", err)
		}
	})
}
