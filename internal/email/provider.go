// Package email delivers transactional mail through a pluggable provider.
package email

import (
	"context"
	"fmt"
	"strings"
)

type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

// NewProvider builds the configured provider. An empty API key is an error;
// callers that can run without email should fall back to a noop sender
// instead of passing empty credentials here.
func NewProvider(apiKey, from string) (Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("email API key is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("email from address is required")
	}
	return NewResendProvider(apiKey, from), nil
}
