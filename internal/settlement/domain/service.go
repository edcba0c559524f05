// Package domain defines the settlement coordinator contract.
package domain

import (
	"context"

	paymentdomain "github.com/soundhaven/soundhaven/internal/payment/domain"
	subscriptiondomain "github.com/soundhaven/soundhaven/internal/subscription/domain"
)

// ResultStatus classifies how a settlement attempt ended.
type ResultStatus string

const (
	// StatusSettled means the event's effects were applied in this call.
	StatusSettled ResultStatus = "settled"
	// StatusAlreadyProcessed means the idempotency ledger had already claimed
	// the event; nothing was applied.
	StatusAlreadyProcessed ResultStatus = "already_processed"
	// StatusConflict means the event was claimed but the transaction had
	// already left the states the transition requires, e.g. a failure delivery
	// for a refunded transaction. The claim stands; nothing else changed.
	StatusConflict ResultStatus = "conflict"
	// StatusUnhandled means the event targets nothing we track, e.g. a
	// cancellation for an unknown external subscription id.
	StatusUnhandled ResultStatus = "unhandled"
)

// Result reports what one settlement attempt did.
type Result struct {
	Status       ResultStatus
	Transaction  *paymentdomain.Transaction
	Subscription *subscriptiondomain.Subscription
}

// Coordinator applies a settlement event exactly once. Claim, transition and
// downstream mutation commit or roll back together; no observable partial
// states exist.
type Coordinator interface {
	Settle(ctx context.Context, event *paymentdomain.SettlementEvent) (*Result, error)
}
