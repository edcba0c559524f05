package reactors

import (
	"context"

	"github.com/soundhaven/soundhaven/internal/events"
	"go.uber.org/zap"
)

// AuditReactor writes a structured log line per settlement outcome. It gives
// operators a trail to reconcile against provider dashboards.
type AuditReactor struct {
	log *zap.Logger
}

func NewAuditReactor(log *zap.Logger) *AuditReactor {
	return &AuditReactor{log: log.Named("reactors.audit")}
}

func (r *AuditReactor) Register(dispatcher *events.Dispatcher) {
	for _, topic := range []events.Topic{
		events.TopicPaymentSucceeded,
		events.TopicPaymentFailed,
		events.TopicRefundIssued,
		events.TopicSubscriptionCreated,
		events.TopicSubscriptionCancelled,
	} {
		topic := topic
		dispatcher.Subscribe(topic, "audit", func(ctx context.Context, payload any) error {
			r.record(topic, payload)
			return nil
		})
	}
}

func (r *AuditReactor) record(topic events.Topic, payload any) {
	switch p := payload.(type) {
	case events.PaymentPayload:
		r.log.Info("settlement outcome",
			zap.String("topic", string(topic)),
			zap.Int64("transaction_id", int64(p.TransactionID)),
			zap.Int64("user_id", int64(p.UserID)),
			zap.String("provider", p.Provider),
			zap.Int64("amount", p.Amount),
			zap.String("currency", p.Currency),
			zap.String("item_type", p.ItemType),
		)
	case events.SubscriptionPayload:
		r.log.Info("subscription outcome",
			zap.String("topic", string(topic)),
			zap.Int64("user_id", int64(p.UserID)),
			zap.Int64("artist_id", int64(p.ArtistID)),
			zap.String("gateway", p.Gateway),
			zap.Time("valid_until", p.ValidUntil),
		)
	default:
		r.log.Info("settlement outcome", zap.String("topic", string(topic)))
	}
}
