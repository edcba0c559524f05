// Package domain contains the artist-subscription models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// SubscriptionStatus is the lifecycle state of an artist subscription.
type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
)

// Subscription is a user's recurring access to an artist's catalog. At most
// one row exists per (user, artist); renewals extend ValidUntil in place.
type Subscription struct {
	ID                     snowflake.ID       `json:"id" gorm:"primaryKey"`
	UserID                 snowflake.ID       `json:"user_id" gorm:"not null;uniqueIndex:idx_subscriptions_user_artist"`
	ArtistID               snowflake.ID       `json:"artist_id" gorm:"not null;uniqueIndex:idx_subscriptions_user_artist"`
	Status                 SubscriptionStatus `json:"status" gorm:"type:text;not null"`
	Gateway                string             `json:"gateway" gorm:"type:text;not null"`
	ExternalSubscriptionID string             `json:"external_subscription_id" gorm:"type:text;index"`
	LastTransactionID      snowflake.ID       `json:"last_transaction_id"`
	ValidUntil             time.Time          `json:"valid_until" gorm:"not null"`
	CancelledAt            *time.Time         `json:"cancelled_at"`
	CreatedAt              time.Time          `json:"created_at" gorm:"not null"`
	UpdatedAt              time.Time          `json:"updated_at" gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

// HasAccess reports whether the subscription still grants access at the given
// instant. A cancelled subscription keeps access until its paid period ends.
func (s *Subscription) HasAccess(at time.Time) bool {
	if s == nil {
		return false
	}
	return s.ValidUntil.After(at)
}
