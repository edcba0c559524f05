// Package webhook ingests provider webhooks: verify, normalize, settle,
// publish.
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/soundhaven/soundhaven/internal/config"
	"github.com/soundhaven/soundhaven/internal/events"
	"github.com/soundhaven/soundhaven/internal/observability"
	"github.com/soundhaven/soundhaven/internal/payment/adapters"
	"github.com/soundhaven/soundhaven/internal/payment/domain"
	settlementdomain "github.com/soundhaven/soundhaven/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Cfg         config.Config
	Registry    *adapters.Registry
	Coordinator settlementdomain.Coordinator
	Dispatcher  *events.Dispatcher
	Metrics     *observability.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	cfg         config.Config
	registry    *adapters.Registry
	coordinator settlementdomain.Coordinator
	dispatcher  *events.Dispatcher
	metrics     *observability.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("payment.webhook"),
		cfg:         p.Cfg,
		registry:    p.Registry,
		coordinator: p.Coordinator,
		dispatcher:  p.Dispatcher,
		metrics:     p.Metrics,
	}
}

// IngestWebhook processes one delivery end to end. Dispatch happens strictly
// after the settlement transaction committed; a duplicate or conflicting
// delivery publishes nothing.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !s.registry.ProviderExists(provider) {
		return domain.ErrProviderNotFound
	}
	if len(payload) == 0 || !json.Valid(payload) {
		s.metrics.ObserveWebhook(provider, "invalid_payload")
		return domain.ErrInvalidPayload
	}

	adapter, err := s.registry.NewAdapter(provider, s.adapterConfig(provider))
	if err != nil {
		return err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		s.metrics.ObserveWebhook(provider, "invalid_signature")
		return err
	}

	event, err := adapter.Parse(ctx, payload, headers)
	if err != nil {
		if err == domain.ErrEventIgnored {
			s.metrics.ObserveWebhook(provider, "ignored")
			return nil
		}
		s.metrics.ObserveWebhook(provider, "invalid_payload")
		return err
	}

	result, err := s.coordinator.Settle(ctx, event)
	if err != nil {
		s.metrics.ObserveWebhook(provider, "error")
		return err
	}

	switch result.Status {
	case settlementdomain.StatusAlreadyProcessed:
		s.metrics.ObserveWebhook(provider, "duplicate")
		return domain.ErrEventAlreadyProcessed
	case settlementdomain.StatusConflict, settlementdomain.StatusUnhandled:
		s.metrics.ObserveWebhook(provider, string(result.Status))
		return nil
	}

	s.metrics.ObserveWebhook(provider, "settled")
	s.publishOutcome(ctx, event, result)
	return nil
}

func (s *Service) adapterConfig(provider string) domain.AdapterConfig {
	switch provider {
	case "stripe":
		return domain.AdapterConfig{
			Provider:      provider,
			WebhookSecret: s.cfg.StripeWebhookSecret,
			APIKey:        s.cfg.StripeAPIKey,
		}
	case "razorpay":
		return domain.AdapterConfig{
			Provider:      provider,
			WebhookSecret: s.cfg.RazorpayWebhookSecret,
			APIKey:        s.cfg.RazorpayKeyID,
			APISecret:     s.cfg.RazorpayKeySecret,
		}
	default:
		return domain.AdapterConfig{Provider: provider}
	}
}

// publishOutcome fans the committed settlement out to the best-effort
// reactors.
func (s *Service) publishOutcome(ctx context.Context, event *domain.SettlementEvent, result *settlementdomain.Result) {
	switch event.Kind {
	case domain.EventPaymentSucceeded:
		payload := s.paymentPayload(event, result)
		s.dispatcher.Publish(ctx, events.TopicPaymentSucceeded, payload)
		if result.Subscription != nil {
			s.dispatcher.Publish(ctx, events.TopicSubscriptionCreated, events.SubscriptionPayload{
				UserID:                 result.Subscription.UserID,
				ArtistID:               result.Subscription.ArtistID,
				TransactionID:          result.Subscription.LastTransactionID,
				ValidUntil:             result.Subscription.ValidUntil,
				Gateway:                result.Subscription.Gateway,
				ExternalSubscriptionID: result.Subscription.ExternalSubscriptionID,
			})
		} else {
			s.dispatcher.Publish(ctx, events.TopicPurchaseCompleted, payload)
		}
	case domain.EventPaymentFailed:
		s.dispatcher.Publish(ctx, events.TopicPaymentFailed, s.paymentPayload(event, result))
	case domain.EventRefundIssued:
		payload := s.paymentPayload(event, result)
		s.dispatcher.Publish(ctx, events.TopicRefundIssued, payload)
		s.dispatcher.Publish(ctx, events.TopicPurchaseRefunded, payload)
	case domain.EventSubscriptionCancelled:
		if result.Subscription == nil {
			return
		}
		s.dispatcher.Publish(ctx, events.TopicSubscriptionCancelled, events.SubscriptionPayload{
			UserID:                 result.Subscription.UserID,
			ArtistID:               result.Subscription.ArtistID,
			TransactionID:          result.Subscription.LastTransactionID,
			ValidUntil:             result.Subscription.ValidUntil,
			Gateway:                result.Subscription.Gateway,
			ExternalSubscriptionID: result.Subscription.ExternalSubscriptionID,
		})
	}
}

func (s *Service) paymentPayload(event *domain.SettlementEvent, result *settlementdomain.Result) events.PaymentPayload {
	payload := events.PaymentPayload{
		TransactionID: event.TransactionID,
		Provider:      event.Provider,
		Amount:        event.Amount,
		Currency:      event.Currency,
		FailureReason: event.FailureReason,
	}
	if tx := result.Transaction; tx != nil {
		payload.UserID = tx.UserID
		payload.ItemType = string(tx.ItemType)
		payload.ItemID = tx.ItemID
		payload.ArtistID = tx.ArtistID
		if payload.Amount == 0 {
			payload.Amount = tx.Amount
		}
		if payload.Currency == "" {
			payload.Currency = tx.Currency
		}
	}
	return payload
}
