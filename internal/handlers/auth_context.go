package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type userContextKey struct{}

// userNamespace turns a verified email into the stable uuid that wallets
// and orders are keyed by.
var userNamespace = uuid.MustParse("8a4f9c2e-1b3d-4e5f-9a7b-6c8d0e2f4a19")

func UserIDForEmail(email string) uuid.UUID {
	return uuid.NewSHA1(userNamespace, []byte(strings.ToLower(strings.TrimSpace(email))))
}

// OptionalAuth resolves a session token when one is presented. Requests
// without a valid token proceed as guest checkouts.
func (h *Handlers) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		email, err := h.otpService.ValidateSessionToken(token)
		if err != nil {
			h.loggerFromContext(r.Context()).Warn("ignoring invalid session token")
			next.ServeHTTP(w, r)
			return
		}

		userID := UserIDForEmail(email)
		ctx := context.WithValue(r.Context(), userContextKey{}, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) *uuid.UUID {
	if ctx == nil {
		return nil
	}
	if userID, ok := ctx.Value(userContextKey{}).(uuid.UUID); ok {
		return &userID
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
