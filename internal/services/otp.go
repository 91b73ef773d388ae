package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clovemart/clovemart/internal/cache"
	"github.com/clovemart/clovemart/internal/logging"
	"github.com/clovemart/clovemart/internal/observability"
)

var (
	ErrOTPInvalid      = errors.New("invalid or expired code")
	ErrOTPUnavailable  = errors.New("otp service unavailable")
	ErrOTPInvalidEmail = errors.New("a valid email address is required")
)

const (
	otpLength     = 6
	otpTTL        = 10 * time.Minute
	sessionExpiry = 30 * 24 * time.Hour
)

// OTPService implements passwordless login: a short-lived code delivered by
// email, exchanged for a signed session token.
type OTPService struct {
	cache         cache.Provider
	email         OrderEmailSender
	sessionSecret []byte
	logger        *slog.Logger
	now           func() time.Time
}

func NewOTPService(cacheProvider cache.Provider, emailSender OrderEmailSender, sessionSecret string, logger *slog.Logger) (*OTPService, error) {
	if cacheProvider == nil {
		return nil, fmt.Errorf("otp service cache is required")
	}
	if len(sessionSecret) < 32 {
		return nil, fmt.Errorf("otp session secret must be at least 32 bytes")
	}
	if emailSender == nil {
		emailSender = noopEmailSender{}
	}
	return &OTPService{
		cache:         cacheProvider,
		email:         emailSender,
		sessionSecret: []byte(sessionSecret),
		logger:        logger,
		now:           time.Now,
	}, nil
}

// RequestCode generates a code, stores it with a TTL and emails it. A
// repeated request overwrites the previous code.
func (s *OTPService) RequestCode(ctx context.Context, emailAddr string) error {
	span, ctx := observability.StartSpan(ctx, "service.otp", "RequestCode")
	defer span.Finish()

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrOTPInvalidEmail
	}

	code, err := generateOTPCode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	if err := s.cache.Set(ctx, cache.OTPKey(emailAddr), code, otpTTL); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	if err := s.email.SendOTPCode(ctx, emailAddr, code, int(otpTTL.Minutes())); err != nil {
		return fmt.Errorf("failed to send login code: %w", err)
	}

	logging.FromContext(ctx, s.logger).Info("login code sent", "email", emailAddr)
	observability.MeterFromContext(ctx).Count("otp.requested", 1)
	return nil
}

// VerifyCode checks the submitted code and returns a signed session token.
// The code is single-use: it is deleted on success.
func (s *OTPService) VerifyCode(ctx context.Context, emailAddr, code string) (string, error) {
	span, ctx := observability.StartSpan(ctx, "service.otp", "VerifyCode")
	defer span.Finish()

	emailAddr = normalizeEmail(emailAddr)
	code = strings.TrimSpace(code)
	if emailAddr == "" || code == "" {
		return "", ErrOTPInvalid
	}

	stored, err := s.cache.Get(ctx, cache.OTPKey(emailAddr))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return "", ErrOTPInvalid
		}
		return "", fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		observability.MeterFromContext(ctx).Count("otp.rejected", 1)
		return "", ErrOTPInvalid
	}

	if err := s.cache.Delete(ctx, cache.OTPKey(emailAddr)); err != nil {
		logging.FromContext(ctx, s.logger).Warn("failed to delete used otp code", "error", err)
	}

	token, err := s.issueSessionToken(emailAddr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	observability.MeterFromContext(ctx).Count("otp.verified", 1)
	return token, nil
}

func (s *OTPService) issueSessionToken(emailAddr string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   emailAddr,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionExpiry)),
		Issuer:    "clovemart",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.sessionSecret)
}

// ValidateSessionToken parses a session token and returns the email it was
// issued for.
func (s *OTPService) ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.sessionSecret, nil
	}, jwt.WithIssuer("clovemart"), jwt.WithExpirationRequired())
	if err != nil {
		return "", ErrOTPInvalid
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrOTPInvalid
	}
	return claims.Subject, nil
}

func generateOTPCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpLength, n), nil
}

func normalizeEmail(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if !strings.Contains(value, "@") || strings.Contains(value, " ") {
		return ""
	}
	return value
}
