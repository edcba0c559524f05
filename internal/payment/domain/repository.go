package domain

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/bwmarrin/snowflake"
)

// TransitionStamp carries the audit fields a state transition records. Only
// fields the transition UPDATE persists belong here; the transaction row
// already carries its provider from initiation.
type TransitionStamp struct {
	At                time.Time
	ProviderPaymentID string
	ProviderPayload   []byte
	FailureReason     string
}

// TransactionRepository persists payment attempts. Every method takes the db
// handle so callers can pass a transaction-scoped one.
type TransactionRepository interface {
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	// Transition conditionally moves id to target, guarded by target's
	// predecessor states. It reports whether a row was updated; zero rows
	// means either the row is absent or it already left the guard states,
	// which the caller distinguishes via FindByID.
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, target TransactionStatus, stamp TransitionStamp) (bool, error)
}

// EventRepository is the idempotency ledger.
type EventRepository interface {
	// Claim inserts the event record, keyed unique on
	// (provider, provider_event_id). It reports false when the id was
	// already claimed; any error is a storage failure, not a duplicate.
	Claim(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	Find(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*WebhookEvent, error)
}
