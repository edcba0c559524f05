// Package domain contains the entitlement models: what a user owns and the
// purchase history behind it.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Entitlement is a user's right to an item, granted when the payment that
// bought it settles. PaymentReference is the settling transaction id and is
// unique, so re-processing the same settlement can never double-grant.
type Entitlement struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID           snowflake.ID `json:"user_id" gorm:"not null;index"`
	ItemType         string       `json:"item_type" gorm:"type:text;not null"`
	ItemID           snowflake.ID `json:"item_id" gorm:"not null"`
	PaymentReference snowflake.ID `json:"payment_reference" gorm:"not null;uniqueIndex"`
	GrantedAt        time.Time    `json:"granted_at" gorm:"not null"`
	RevokedAt        *time.Time   `json:"revoked_at"`
}

func (Entitlement) TableName() string { return "entitlements" }

// HistoryKind tags a purchase-history entry.
type HistoryKind string

const (
	HistoryPurchase HistoryKind = "purchase"
	HistoryRefund   HistoryKind = "refund"
)

// PurchaseHistoryEntry is the append-only audit trail of settlements affecting
// a user's library.
type PurchaseHistoryEntry struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID        snowflake.ID `json:"user_id" gorm:"not null;index"`
	TransactionID snowflake.ID `json:"transaction_id" gorm:"not null"`
	Kind          HistoryKind  `json:"kind" gorm:"type:text;not null"`
	ItemType      string       `json:"item_type" gorm:"type:text;not null"`
	ItemID        snowflake.ID `json:"item_id"`
	Amount        int64        `json:"amount" gorm:"not null"`
	Currency      string       `json:"currency" gorm:"type:text;not null"`
	OccurredAt    time.Time    `json:"occurred_at" gorm:"not null"`
}

func (PurchaseHistoryEntry) TableName() string { return "purchase_history" }
