package domain

import (
	"context"
	"net/http"
)

// AdapterConfig carries the per-provider secrets an adapter needs.
type AdapterConfig struct {
	Provider      string
	WebhookSecret string
	APIKey        string
	APISecret     string
}

// PaymentAdapter verifies and normalizes one provider's webhooks.
type PaymentAdapter interface {
	// Verify checks the provider signature over the raw body. Any mismatch is
	// ErrInvalidSignature and the delivery must be rejected unprocessed.
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	// Parse maps the provider's event taxonomy into a SettlementEvent.
	// Taxonomy outside the normalized set returns ErrEventIgnored.
	Parse(ctx context.Context, payload []byte, headers http.Header) (*SettlementEvent, error)
}

// AdapterFactory builds adapters for one provider.
type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// Service ingests provider webhooks end to end: verify, normalize, settle,
// then publish outcomes.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
