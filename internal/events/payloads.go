package events

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PaymentPayload accompanies payment.succeeded, payment.failed, refund.issued,
// purchase.completed and purchase.refunded.
type PaymentPayload struct {
	TransactionID snowflake.ID
	UserID        snowflake.ID
	Provider      string
	Amount        int64
	Currency      string
	ItemType      string
	ItemID        snowflake.ID
	ArtistID      snowflake.ID
	FailureReason string
}

// SubscriptionPayload accompanies subscription.created and subscription.cancelled.
type SubscriptionPayload struct {
	UserID                 snowflake.ID
	ArtistID               snowflake.ID
	TransactionID          snowflake.ID
	ValidUntil             time.Time
	Gateway                string
	ExternalSubscriptionID string
}
