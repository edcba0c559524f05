// Package domain contains the settlement core's models: payment transactions,
// the webhook idempotency ledger and the normalized settlement event.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TransactionStatus is the lifecycle state of one payment attempt.
// Transitions are monotone: pending -> {paid, failed}, paid -> refunded.
// failed and refunded are terminal.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusPaid     TransactionStatus = "paid"
	StatusFailed   TransactionStatus = "failed"
	StatusRefunded TransactionStatus = "refunded"
)

// Predecessors returns the states a transaction must currently be in for the
// target transition to apply. The conditional update in the repository uses
// this as its WHERE guard.
func (s TransactionStatus) Predecessors() []TransactionStatus {
	switch s {
	case StatusPaid, StatusFailed:
		return []TransactionStatus{StatusPending}
	case StatusRefunded:
		return []TransactionStatus{StatusPaid}
	default:
		return nil
	}
}

// ItemType tags what a transaction pays for.
type ItemType string

const (
	ItemTypeSong               ItemType = "song"
	ItemTypeAlbum              ItemType = "album"
	ItemTypeArtistSubscription ItemType = "artist-subscription"
)

// Item is the closed set of purchasable things. Each variant carries only the
// fields relevant to it, so a mistyped kind string cannot silently fall into a
// no-op branch.
type Item interface {
	Type() ItemType
}

type SongItem struct {
	SongID snowflake.ID
}

func (SongItem) Type() ItemType { return ItemTypeSong }

type AlbumItem struct {
	AlbumID snowflake.ID
}

func (AlbumItem) Type() ItemType { return ItemTypeAlbum }

type ArtistSubscriptionItem struct {
	ArtistID snowflake.ID
}

func (ArtistSubscriptionItem) Type() ItemType { return ItemTypeArtistSubscription }

// Transaction is one payment attempt. It is created pending by the
// payment-initiation flow and owned by the settlement coordinator afterwards.
type Transaction struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	UserID            snowflake.ID      `json:"user_id" gorm:"not null;index"`
	ItemType          ItemType          `json:"item_type" gorm:"type:text;not null"`
	ItemID            snowflake.ID      `json:"item_id"`
	ArtistID          snowflake.ID      `json:"artist_id"`
	Amount            int64             `json:"amount" gorm:"not null"`
	Currency          string            `json:"currency" gorm:"type:text;not null"`
	Provider          string            `json:"provider" gorm:"type:text;not null"`
	Status            TransactionStatus `json:"status" gorm:"type:text;not null"`
	ProviderPaymentID string            `json:"provider_payment_id" gorm:"type:text"`
	ProviderPayload   datatypes.JSON    `json:"provider_payload" gorm:"type:jsonb"`
	FailureReason     string            `json:"failure_reason" gorm:"type:text"`
	PaidAt            *time.Time        `json:"paid_at"`
	FailedAt          *time.Time        `json:"failed_at"`
	RefundedAt        *time.Time        `json:"refunded_at"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

// Item reconstructs the tagged variant from the stored columns.
func (t *Transaction) Item() (Item, error) {
	switch t.ItemType {
	case ItemTypeSong:
		return SongItem{SongID: t.ItemID}, nil
	case ItemTypeAlbum:
		return AlbumItem{AlbumID: t.ItemID}, nil
	case ItemTypeArtistSubscription:
		artistID := t.ArtistID
		if artistID == 0 {
			artistID = t.ItemID
		}
		return ArtistSubscriptionItem{ArtistID: artistID}, nil
	default:
		return nil, ErrUnknownItemType
	}
}

// WebhookEvent is one idempotency claim: the durable record that a provider
// event id has been accepted for processing. Rows are never updated or
// deleted.
type WebhookEvent struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null"`
	EventKind       string         `json:"event_kind" gorm:"type:text;not null"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
}

func (WebhookEvent) TableName() string { return "webhook_events" }

// EventKind is the normalized taxonomy every provider adapter maps into.
type EventKind string

const (
	EventPaymentSucceeded      EventKind = "payment_succeeded"
	EventPaymentFailed         EventKind = "payment_failed"
	EventRefundIssued          EventKind = "refund_issued"
	EventSubscriptionCancelled EventKind = "subscription_cancelled"
)

// SettlementEvent is the canonical event parsed by adapters. TransactionID
// comes from metadata the platform itself attached at initiation time, never
// from provider-controlled free text.
type SettlementEvent struct {
	Provider        string
	ProviderEventID string
	Kind            EventKind
	TransactionID   snowflake.ID
	// UserID is optional; the transaction row is authoritative when absent.
	UserID            snowflake.ID
	Item              Item
	ProviderPaymentID string
	// PeriodEnd is the provider's billing-period end for subscription
	// purchases, when the payload carries one.
	PeriodEnd              *time.Time
	ExternalSubscriptionID string
	FailureReason          string
	Amount                 int64
	Currency               string
	RawPayload             []byte
}

// NeedsTransaction reports whether settling this kind requires a transaction
// id. Subscription cancellations are keyed by subscription identity instead.
func (e *SettlementEvent) NeedsTransaction() bool {
	switch e.Kind {
	case EventPaymentSucceeded, EventPaymentFailed, EventRefundIssued:
		return true
	default:
		return false
	}
}
