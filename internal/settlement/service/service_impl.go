package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/soundhaven/soundhaven/internal/clock"
	"github.com/soundhaven/soundhaven/internal/config"
	entitlementdomain "github.com/soundhaven/soundhaven/internal/entitlement/domain"
	"github.com/soundhaven/soundhaven/internal/observability"
	paymentdomain "github.com/soundhaven/soundhaven/internal/payment/domain"
	"github.com/soundhaven/soundhaven/internal/settlement/domain"
	subscriptiondomain "github.com/soundhaven/soundhaven/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Cfg           config.Config
	Transactions  paymentdomain.TransactionRepository
	Events        paymentdomain.EventRepository
	Entitlements  entitlementdomain.Repository
	Subscriptions subscriptiondomain.Repository
	Metrics       *observability.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	defaultPeriod time.Duration
	timeout       time.Duration
	transactions  paymentdomain.TransactionRepository
	events        paymentdomain.EventRepository
	entitlements  entitlementdomain.Repository
	subscriptions subscriptiondomain.Repository
	metrics       *observability.Metrics
}

func NewService(p Params) domain.Coordinator {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("settlement.coordinator"),
		genID:         p.GenID,
		clock:         p.Clock,
		defaultPeriod: time.Duration(p.Cfg.SubscriptionDefaultPeriodDays) * 24 * time.Hour,
		timeout:       time.Duration(p.Cfg.SettlementTimeoutSeconds) * time.Second,
		transactions:  p.Transactions,
		events:        p.Events,
		entitlements:  p.Entitlements,
		subscriptions: p.Subscriptions,
		metrics:       p.Metrics,
	}
}

// Settle applies one normalized provider event. The idempotency claim, the
// state transition and the entitlement or subscription mutation run in a
// single database transaction: either all of it commits or none of it does.
// An error rolls everything back, including the claim, so the provider's
// redelivery gets a clean retry.
func (s *Service) Settle(ctx context.Context, event *paymentdomain.SettlementEvent) (*domain.Result, error) {
	if event == nil {
		return nil, paymentdomain.ErrInvalidEvent
	}
	if event.NeedsTransaction() && event.TransactionID == 0 {
		// Checked before any claim so the ledger only ever records events we
		// could actually act on.
		s.observe(event, "missing_transaction_id")
		return nil, paymentdomain.ErrMissingTransactionID
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var result *domain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.settleInTx(ctx, tx, event)
		return txErr
	})
	if err != nil {
		s.observe(event, "error")
		return nil, err
	}

	s.observe(event, string(result.Status))
	return result, nil
}

func (s *Service) settleInTx(ctx context.Context, tx *gorm.DB, event *paymentdomain.SettlementEvent) (*domain.Result, error) {
	claimed, err := s.claim(ctx, tx, event)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return &domain.Result{Status: domain.StatusAlreadyProcessed}, nil
	}

	switch event.Kind {
	case paymentdomain.EventPaymentSucceeded:
		return s.applyPaymentSucceeded(ctx, tx, event)
	case paymentdomain.EventPaymentFailed:
		return s.applyPaymentFailed(ctx, tx, event)
	case paymentdomain.EventRefundIssued:
		return s.applyRefund(ctx, tx, event)
	case paymentdomain.EventSubscriptionCancelled:
		return s.applySubscriptionCancelled(ctx, tx, event)
	default:
		return nil, paymentdomain.ErrInvalidEvent
	}
}

// claim records the provider event id in the ledger. Events without an id
// (Razorpay deliveries missing the event-id header) skip the ledger; the
// conditional state transition is then the only duplicate defense.
func (s *Service) claim(ctx context.Context, tx *gorm.DB, event *paymentdomain.SettlementEvent) (bool, error) {
	if event.ProviderEventID == "" {
		s.log.Warn("event without provider event id, idempotency ledger bypassed",
			zap.String("provider", event.Provider),
			zap.String("kind", string(event.Kind)),
		)
		return true, nil
	}

	return s.events.Claim(ctx, tx, &paymentdomain.WebhookEvent{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventKind:       string(event.Kind),
		Payload:         event.RawPayload,
		ReceivedAt:      s.clock.Now(),
	})
}

func (s *Service) applyPaymentSucceeded(ctx context.Context, tx *gorm.DB, event *paymentdomain.SettlementEvent) (*domain.Result, error) {
	now := s.clock.Now()

	transaction, res, err := s.transition(ctx, tx, event, paymentdomain.StatusPaid, paymentdomain.TransitionStamp{
		At:                now,
		ProviderPaymentID: event.ProviderPaymentID,
		ProviderPayload:   event.RawPayload,
	})
	if err != nil || res != nil {
		return res, err
	}

	item, err := transaction.Item()
	if err != nil {
		return nil, err
	}

	result := &domain.Result{Status: domain.StatusSettled, Transaction: transaction}

	switch item := item.(type) {
	case paymentdomain.SongItem, paymentdomain.AlbumItem:
		granted, err := s.entitlements.Grant(ctx, tx, &entitlementdomain.Entitlement{
			ID:               s.genID.Generate(),
			UserID:           transaction.UserID,
			ItemType:         string(item.Type()),
			ItemID:           transaction.ItemID,
			PaymentReference: transaction.ID,
			GrantedAt:        now,
		})
		if err != nil {
			return nil, err
		}
		if !granted {
			// Ledger bypass path: the transition matched but the grant for
			// this payment already exists. Nothing more to apply.
			s.log.Warn("entitlement already granted for payment",
				zap.Int64("transaction_id", int64(transaction.ID)),
			)
		}
	case paymentdomain.ArtistSubscriptionItem:
		sub, err := s.upsertSubscription(ctx, tx, transaction, item, event, now)
		if err != nil {
			return nil, err
		}
		result.Subscription = sub
	default:
		return nil, paymentdomain.ErrUnknownItemType
	}

	if err := s.entitlements.AppendHistory(ctx, tx, &entitlementdomain.PurchaseHistoryEntry{
		ID:            s.genID.Generate(),
		UserID:        transaction.UserID,
		TransactionID: transaction.ID,
		Kind:          entitlementdomain.HistoryPurchase,
		ItemType:      string(transaction.ItemType),
		ItemID:        transaction.ItemID,
		Amount:        transaction.Amount,
		Currency:      transaction.Currency,
		OccurredAt:    now,
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) applyPaymentFailed(ctx context.Context, tx *gorm.DB, event *paymentdomain.SettlementEvent) (*domain.Result, error) {
	transaction, res, err := s.transition(ctx, tx, event, paymentdomain.StatusFailed, paymentdomain.TransitionStamp{
		At:              s.clock.Now(),
		ProviderPayload: event.RawPayload,
		FailureReason:   event.FailureReason,
	})
	if err != nil || res != nil {
		return res, err
	}
	return &domain.Result{Status: domain.StatusSettled, Transaction: transaction}, nil
}

func (s *Service) applyRefund(ctx context.Context, tx *gorm.DB, event *paymentdomain.SettlementEvent) (*domain.Result, error) {
	now := s.clock.Now()

	transaction, res, err := s.transition(ctx, tx, event, paymentdomain.StatusRefunded, paymentdomain.TransitionStamp{
		At:              now,
		ProviderPayload: event.RawPayload,
	})
	if err != nil || res != nil {
		return res, err
	}

	// Revoke whatever the payment granted. Subscription purchases have no
	// entitlement row; their access simply runs out at valid_until.
	if _, err := s.entitlements.Revoke(ctx, tx, transaction.ID, now); err != nil {
		return nil, err
	}

	if err := s.entitlements.AppendHistory(ctx, tx, &entitlementdomain.PurchaseHistoryEntry{
		ID:            s.genID.Generate(),
		UserID:        transaction.UserID,
		TransactionID: transaction.ID,
		Kind:          entitlementdomain.HistoryRefund,
		ItemType:      string(transaction.ItemType),
		ItemID:        transaction.ItemID,
		Amount:        event.Amount,
		Currency:      transaction.Currency,
		OccurredAt:    now,
	}); err != nil {
		return nil, err
	}

	return &domain.Result{Status: domain.StatusSettled, Transaction: transaction}, nil
}

func (s *Service) applySubscriptionCancelled(ctx context.Context, tx *gorm.DB, event *paymentdomain.SettlementEvent) (*domain.Result, error) {
	if event.ExternalSubscriptionID == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	sub, err := s.subscriptions.Cancel(ctx, tx, event.ExternalSubscriptionID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if sub == nil {
		s.log.Warn("cancellation for unknown or already cancelled subscription",
			zap.String("provider", event.Provider),
			zap.String("external_subscription_id", event.ExternalSubscriptionID),
		)
		return &domain.Result{Status: domain.StatusUnhandled}, nil
	}

	return &domain.Result{Status: domain.StatusSettled, Subscription: sub}, nil
}

// transition performs the conditional state move. On zero rows it re-reads the
// row to tell "absent" from "already past this state": the former is a
// data-integrity anomaly surfaced as an error (rolling back the claim), the
// latter a conflict the claim absorbs.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, event *paymentdomain.SettlementEvent, target paymentdomain.TransactionStatus, stamp paymentdomain.TransitionStamp) (*paymentdomain.Transaction, *domain.Result, error) {
	moved, err := s.transactions.Transition(ctx, tx, event.TransactionID, target, stamp)
	if err != nil {
		return nil, nil, err
	}

	transaction, err := s.transactions.FindByID(ctx, tx, event.TransactionID)
	if err != nil {
		return nil, nil, err
	}
	if transaction == nil {
		s.log.Error("settlement event for unknown transaction",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.Int64("transaction_id", int64(event.TransactionID)),
		)
		return nil, nil, paymentdomain.ErrTransactionNotFound
	}
	if !moved {
		if transaction.Status == target {
			// Duplicate delivery that slipped past the ledger. The claim (if
			// any) commits and the state stays as it is.
			return nil, &domain.Result{Status: domain.StatusAlreadyProcessed, Transaction: transaction}, nil
		}
		s.log.Warn("settlement event conflicts with transaction state",
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.Int64("transaction_id", int64(event.TransactionID)),
			zap.String("current_status", string(transaction.Status)),
			zap.String("target_status", string(target)),
		)
		return nil, &domain.Result{Status: domain.StatusConflict, Transaction: transaction}, nil
	}

	return transaction, nil, nil
}

func (s *Service) upsertSubscription(ctx context.Context, tx *gorm.DB, transaction *paymentdomain.Transaction, item paymentdomain.ArtistSubscriptionItem, event *paymentdomain.SettlementEvent, now time.Time) (*subscriptiondomain.Subscription, error) {
	validUntil := now.Add(s.defaultPeriod)
	if event.PeriodEnd != nil {
		validUntil = *event.PeriodEnd
	} else {
		s.log.Warn("provider payload carried no billing period end, applying default period",
			zap.String("provider", event.Provider),
			zap.Int64("transaction_id", int64(transaction.ID)),
			zap.Duration("default_period", s.defaultPeriod),
		)
	}

	sub := &subscriptiondomain.Subscription{
		ID:                     s.genID.Generate(),
		UserID:                 transaction.UserID,
		ArtistID:               item.ArtistID,
		Status:                 subscriptiondomain.StatusActive,
		Gateway:                event.Provider,
		ExternalSubscriptionID: event.ExternalSubscriptionID,
		LastTransactionID:      transaction.ID,
		ValidUntil:             validUntil,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.subscriptions.Upsert(ctx, tx, sub); err != nil {
		return nil, err
	}

	return s.subscriptions.FindByUserArtist(ctx, tx, transaction.UserID, item.ArtistID)
}

func (s *Service) observe(event *paymentdomain.SettlementEvent, result string) {
	provider, kind := "unknown", "unknown"
	if event != nil {
		provider = event.Provider
		kind = string(event.Kind)
	}
	s.metrics.ObserveSettlement(provider, kind, result)
}
