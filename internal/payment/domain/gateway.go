package domain

import "context"

// GatewayOrder is what the client needs to complete a checkout: Stripe hands
// back a client secret, Razorpay an order id.
type GatewayOrder struct {
	ProviderOrderID string
	ClientSecret    string
}

// Gateway is the outbound side of a payment provider: order creation at
// initiation time and refund issuance. Settlement never goes through it;
// confirmations always arrive as webhooks.
type Gateway interface {
	Provider() string
	// CreateOrder registers the payment with the provider, attaching the
	// transaction id and item metadata the webhook path later relies on.
	CreateOrder(ctx context.Context, tx *Transaction) (*GatewayOrder, error)
	// IssueRefund asks the provider to refund the given payment. The refund
	// is settled only when the provider's confirmation webhook arrives.
	IssueRefund(ctx context.Context, providerPaymentID string) error
}
