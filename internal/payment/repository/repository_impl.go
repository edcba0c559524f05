package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/soundhaven/soundhaven/internal/payment/domain"
	pkgdb "github.com/soundhaven/soundhaven/pkg/db"
	"gorm.io/gorm"
)

type transactionRepo struct{}

func ProvideTransactions() domain.TransactionRepository {
	return &transactionRepo{}
}

func (r *transactionRepo) Insert(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transactions (
			id, user_id, item_type, item_id, artist_id, amount, currency, provider,
			status, provider_payment_id, provider_payload, failure_reason,
			paid_at, failed_at, refunded_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.UserID,
		tx.ItemType,
		tx.ItemID,
		tx.ArtistID,
		tx.Amount,
		tx.Currency,
		tx.Provider,
		tx.Status,
		tx.ProviderPaymentID,
		tx.ProviderPayload,
		tx.FailureReason,
		tx.PaidAt,
		tx.FailedAt,
		tx.RefundedAt,
		tx.CreatedAt,
		tx.UpdatedAt,
	).Error
}

func (r *transactionRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, item_type, item_id, artist_id, amount, currency, provider,
		 status, provider_payment_id, provider_payload, failure_reason,
		 paid_at, failed_at, refunded_at, created_at, updated_at
		 FROM transactions WHERE id = ?`,
		id,
	).Scan(&tx).Error
	if err != nil {
		return nil, err
	}
	if tx.ID == 0 {
		return nil, nil
	}
	return &tx, nil
}

// Transition is the state machine's single conditional update: the WHERE
// clause admits only valid predecessor states, so duplicates and out-of-order
// deliveries match zero rows instead of moving the state backward.
func (r *transactionRepo) Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, target domain.TransactionStatus, stamp domain.TransitionStamp) (bool, error) {
	preds := target.Predecessors()
	if len(preds) == 0 {
		return false, domain.ErrInvalidEvent
	}

	var res *gorm.DB
	switch target {
	case domain.StatusPaid:
		res = db.WithContext(ctx).Exec(
			`UPDATE transactions
			 SET status = ?, paid_at = ?, provider_payment_id = ?, provider_payload = ?, updated_at = ?
			 WHERE id = ? AND status IN ?`,
			target, stamp.At, stamp.ProviderPaymentID, stamp.ProviderPayload, stamp.At, id, preds,
		)
	case domain.StatusFailed:
		res = db.WithContext(ctx).Exec(
			`UPDATE transactions
			 SET status = ?, failed_at = ?, failure_reason = ?, provider_payload = ?, updated_at = ?
			 WHERE id = ? AND status IN ?`,
			target, stamp.At, stamp.FailureReason, stamp.ProviderPayload, stamp.At, id, preds,
		)
	case domain.StatusRefunded:
		res = db.WithContext(ctx).Exec(
			`UPDATE transactions
			 SET status = ?, refunded_at = ?, provider_payload = ?, updated_at = ?
			 WHERE id = ? AND status IN ?`,
			target, stamp.At, stamp.ProviderPayload, stamp.At, id, preds,
		)
	default:
		return false, domain.ErrInvalidEvent
	}

	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type eventRepo struct{}

func ProvideEvents() domain.EventRepository {
	return &eventRepo{}
}

// Claim is the idempotency ledger insert. RowsAffected == 0 means the
// provider event id was already claimed; that is the expected outcome for a
// duplicate delivery, not an error.
func (r *eventRepo) Claim(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, provider, provider_event_id, event_kind, payload, received_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventKind,
		event.Payload,
		event.ReceivedAt,
	)
	if res.Error != nil {
		// Dialects that race past the conflict clause still surface the unique
		// index violation; that is a duplicate, not a storage failure.
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *eventRepo) Find(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.WebhookEvent, error) {
	var event domain.WebhookEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_kind, payload, received_at
		 FROM webhook_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}
