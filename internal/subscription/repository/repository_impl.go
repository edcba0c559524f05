package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/soundhaven/soundhaven/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Upsert first tries to extend an existing (user, artist) row, then inserts
// one. The CASE keeps valid_until monotone so a stale renewal cannot shrink a
// period, and the conflict clause absorbs the insert/insert race; one retry of
// the update then lands the extension.
func (r *repo) Upsert(ctx context.Context, db *gorm.DB, sub *domain.Subscription) error {
	for attempt := 0; attempt < 2; attempt++ {
		res := db.WithContext(ctx).Exec(
			`UPDATE subscriptions
			 SET status = ?,
			     gateway = ?,
			     external_subscription_id = ?,
			     last_transaction_id = ?,
			     valid_until = CASE WHEN valid_until > ? THEN valid_until ELSE ? END,
			     cancelled_at = NULL,
			     updated_at = ?
			 WHERE user_id = ? AND artist_id = ?`,
			domain.StatusActive,
			sub.Gateway,
			sub.ExternalSubscriptionID,
			sub.LastTransactionID,
			sub.ValidUntil, sub.ValidUntil,
			sub.UpdatedAt,
			sub.UserID, sub.ArtistID,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		res = db.WithContext(ctx).Exec(
			`INSERT INTO subscriptions (
				id, user_id, artist_id, status, gateway, external_subscription_id,
				last_transaction_id, valid_until, cancelled_at, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
			ON CONFLICT (user_id, artist_id) DO NOTHING`,
			sub.ID,
			sub.UserID,
			sub.ArtistID,
			domain.StatusActive,
			sub.Gateway,
			sub.ExternalSubscriptionID,
			sub.LastTransactionID,
			sub.ValidUntil,
			sub.CreatedAt,
			sub.UpdatedAt,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
	}
	return gorm.ErrInvalidTransaction
}

func (r *repo) Cancel(ctx context.Context, db *gorm.DB, externalSubscriptionID string, at time.Time) (*domain.Subscription, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, cancelled_at = ?, updated_at = ?
		 WHERE external_subscription_id = ? AND status = ?`,
		domain.StatusCancelled,
		at,
		at,
		externalSubscriptionID,
		domain.StatusActive,
	)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	var sub domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, artist_id, status, gateway, external_subscription_id,
		 last_transaction_id, valid_until, cancelled_at, created_at, updated_at
		 FROM subscriptions WHERE external_subscription_id = ?
		 LIMIT 1`,
		externalSubscriptionID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repo) FindByUserArtist(ctx context.Context, db *gorm.DB, userID, artistID snowflake.ID) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, artist_id, status, gateway, external_subscription_id,
		 last_transaction_id, valid_until, cancelled_at, created_at, updated_at
		 FROM subscriptions WHERE user_id = ? AND artist_id = ?`,
		userID,
		artistID,
	).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, artist_id, status, gateway, external_subscription_id,
		 last_transaction_id, valid_until, cancelled_at, created_at, updated_at
		 FROM subscriptions
		 WHERE user_id = ?
		 ORDER BY created_at DESC`,
		userID,
	).Scan(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
