package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists entitlements and purchase history. Every method takes
// the db handle so the settlement coordinator can pass its transaction scope.
type Repository interface {
	// Grant inserts the entitlement, keyed unique on payment_reference. It
	// reports false when that reference was already granted.
	Grant(ctx context.Context, db *gorm.DB, entitlement *Entitlement) (bool, error)
	// Revoke marks the entitlement for the given payment reference revoked and
	// returns the revoked row, or nil when no active entitlement matched.
	Revoke(ctx context.Context, db *gorm.DB, paymentReference snowflake.ID, at time.Time) (*Entitlement, error)
	AppendHistory(ctx context.Context, db *gorm.DB, entry *PurchaseHistoryEntry) error
	ListActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Entitlement, error)
	ListHistoryByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]PurchaseHistoryEntry, error)
}
