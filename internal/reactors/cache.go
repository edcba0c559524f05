package reactors

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/soundhaven/soundhaven/internal/events"
	"go.uber.org/zap"
)

const (
	keyUserEntitlements  = "entitlements:user:%d"
	keyUserSubscriptions = "subscriptions:user:%d"
)

// CacheReactor drops the read-side caches for a user whose library or
// subscriptions just changed. A nil client makes every handler a no-op.
type CacheReactor struct {
	log    *zap.Logger
	client *redis.Client
}

func NewCacheReactor(log *zap.Logger, client *redis.Client) *CacheReactor {
	return &CacheReactor{
		log:    log.Named("reactors.cache"),
		client: client,
	}
}

func (r *CacheReactor) Register(dispatcher *events.Dispatcher) {
	dispatcher.Subscribe(events.TopicPurchaseCompleted, "cache.entitlements", r.onLibraryChanged)
	dispatcher.Subscribe(events.TopicPurchaseRefunded, "cache.entitlements", r.onLibraryChanged)
	dispatcher.Subscribe(events.TopicSubscriptionCreated, "cache.subscriptions", r.onSubscriptionChanged)
	dispatcher.Subscribe(events.TopicSubscriptionCancelled, "cache.subscriptions", r.onSubscriptionChanged)
}

func (r *CacheReactor) onLibraryChanged(ctx context.Context, payload any) error {
	p, ok := payload.(events.PaymentPayload)
	if !ok || r.client == nil {
		return nil
	}
	return r.client.Del(ctx, fmt.Sprintf(keyUserEntitlements, int64(p.UserID))).Err()
}

func (r *CacheReactor) onSubscriptionChanged(ctx context.Context, payload any) error {
	p, ok := payload.(events.SubscriptionPayload)
	if !ok || r.client == nil {
		return nil
	}
	return r.client.Del(ctx, fmt.Sprintf(keyUserSubscriptions, int64(p.UserID))).Err()
}
