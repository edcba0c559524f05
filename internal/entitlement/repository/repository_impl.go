package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/soundhaven/soundhaven/internal/entitlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Grant(ctx context.Context, db *gorm.DB, entitlement *domain.Entitlement) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO entitlements (
			id, user_id, item_type, item_id, payment_reference, granted_at, revoked_at
		) VALUES (?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT (payment_reference) DO NOTHING`,
		entitlement.ID,
		entitlement.UserID,
		entitlement.ItemType,
		entitlement.ItemID,
		entitlement.PaymentReference,
		entitlement.GrantedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Revoke(ctx context.Context, db *gorm.DB, paymentReference snowflake.ID, at time.Time) (*domain.Entitlement, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE entitlements SET revoked_at = ?
		 WHERE payment_reference = ? AND revoked_at IS NULL`,
		at,
		paymentReference,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var entitlement domain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, item_type, item_id, payment_reference, granted_at, revoked_at
		 FROM entitlements WHERE payment_reference = ?`,
		paymentReference,
	).Scan(&entitlement).Error
	if err != nil {
		return nil, err
	}
	return &entitlement, nil
}

func (r *repo) AppendHistory(ctx context.Context, db *gorm.DB, entry *domain.PurchaseHistoryEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO purchase_history (
			id, user_id, transaction_id, kind, item_type, item_id, amount, currency, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.UserID,
		entry.TransactionID,
		entry.Kind,
		entry.ItemType,
		entry.ItemID,
		entry.Amount,
		entry.Currency,
		entry.OccurredAt,
	).Error
}

func (r *repo) ListActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Entitlement, error) {
	var entitlements []domain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, item_type, item_id, payment_reference, granted_at, revoked_at
		 FROM entitlements
		 WHERE user_id = ? AND revoked_at IS NULL
		 ORDER BY granted_at DESC`,
		userID,
	).Scan(&entitlements).Error
	if err != nil {
		return nil, err
	}
	return entitlements, nil
}

func (r *repo) ListHistoryByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.PurchaseHistoryEntry, error) {
	var entries []domain.PurchaseHistoryEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, transaction_id, kind, item_type, item_id, amount, currency, occurred_at
		 FROM purchase_history
		 WHERE user_id = ?
		 ORDER BY occurred_at DESC`,
		userID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
