package domain

import "errors"

var (
	// Verification / normalization failures. Terminal for the delivery: the
	// request is rejected before any idempotency claim is consumed.
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrProviderNotFound = errors.New("provider_not_found")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")

	// ErrEventIgnored marks provider event types outside the normalized
	// taxonomy. Acknowledged, never settled.
	ErrEventIgnored = errors.New("event_ignored")

	// ErrEventAlreadyProcessed is the idempotency ledger conflict. It is the
	// expected outcome for a duplicate delivery, not a failure.
	ErrEventAlreadyProcessed = errors.New("event_already_processed")

	// ErrTransactionNotFound means a provider confirmed a payment the
	// platform has no record of. Data-integrity anomaly; logged loudly.
	ErrTransactionNotFound = errors.New("transaction_not_found")

	// ErrMissingTransactionID marks a settleable event without the platform
	// metadata required to settle it. Hard failure, manual reconciliation.
	ErrMissingTransactionID = errors.New("missing_transaction_id")

	ErrUnknownItemType = errors.New("unknown_item_type")

	// Initiation / refund issuance failures.
	ErrNotRefundable = errors.New("transaction_not_refundable")
	ErrGatewayError  = errors.New("gateway_error")
)
