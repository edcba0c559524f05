package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository persists artist subscriptions. Every method takes the db handle
// so the settlement coordinator can pass its transaction scope.
type Repository interface {
	// Upsert creates the (user, artist) subscription or extends the existing
	// one. ValidUntil only ever moves forward; a late renewal delivery cannot
	// shorten a period a newer one already extended.
	Upsert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	// Cancel marks the subscription cancelled, keyed by the provider's
	// subscription id. Access runs until valid_until regardless. Returns the
	// cancelled row, or nil when nothing matched.
	Cancel(ctx context.Context, db *gorm.DB, externalSubscriptionID string, at time.Time) (*Subscription, error)
	FindByUserArtist(ctx context.Context, db *gorm.DB, userID, artistID snowflake.ID) (*Subscription, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]Subscription, error)
}
