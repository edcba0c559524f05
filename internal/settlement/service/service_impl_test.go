package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/soundhaven/soundhaven/internal/clock"
	"github.com/soundhaven/soundhaven/internal/config"
	entitlementdomain "github.com/soundhaven/soundhaven/internal/entitlement/domain"
	entitlementrepo "github.com/soundhaven/soundhaven/internal/entitlement/repository"
	paymentdomain "github.com/soundhaven/soundhaven/internal/payment/domain"
	paymentrepo "github.com/soundhaven/soundhaven/internal/payment/repository"
	"github.com/soundhaven/soundhaven/internal/settlement/domain"
	subscriptionrepo "github.com/soundhaven/soundhaven/internal/subscription/repository"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	svc   domain.Coordinator
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
}

func setupCoordinator(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	prepareSettlementSchema(t, db)

	node := mustNode(t)
	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         fake,
		Cfg:           config.Config{SubscriptionDefaultPeriodDays: 30, SettlementTimeoutSeconds: 5},
		Transactions:  paymentrepo.ProvideTransactions(),
		Events:        paymentrepo.ProvideEvents(),
		Entitlements:  entitlementrepo.Provide(),
		Subscriptions: subscriptionrepo.Provide(),
	})

	return &fixture{svc: svc, db: db, node: node, clock: fake}
}

func prepareSettlementSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	statements := []string{
		`CREATE TABLE transactions (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			item_type TEXT NOT NULL,
			item_id BIGINT NOT NULL DEFAULT 0,
			artist_id BIGINT NOT NULL DEFAULT 0,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			provider TEXT NOT NULL,
			status TEXT NOT NULL,
			provider_payment_id TEXT NOT NULL DEFAULT '',
			provider_payload JSON,
			failure_reason TEXT NOT NULL DEFAULT '',
			paid_at DATETIME,
			failed_at DATETIME,
			refunded_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE webhook_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_kind TEXT NOT NULL,
			payload JSON,
			received_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX idx_webhook_events_provider_event
			ON webhook_events (provider, provider_event_id)`,
		`CREATE TABLE entitlements (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			item_type TEXT NOT NULL,
			item_id BIGINT NOT NULL,
			payment_reference BIGINT NOT NULL,
			granted_at DATETIME NOT NULL,
			revoked_at DATETIME
		)`,
		`CREATE UNIQUE INDEX idx_entitlements_payment_reference
			ON entitlements (payment_reference)`,
		`CREATE TABLE purchase_history (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			transaction_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			item_type TEXT NOT NULL,
			item_id BIGINT NOT NULL DEFAULT 0,
			amount BIGINT NOT NULL,
			currency TEXT NOT NULL,
			occurred_at DATETIME NOT NULL
		)`,
		`CREATE TABLE subscriptions (
			id BIGINT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			artist_id BIGINT NOT NULL,
			status TEXT NOT NULL,
			gateway TEXT NOT NULL,
			external_subscription_id TEXT NOT NULL DEFAULT '',
			last_transaction_id BIGINT NOT NULL DEFAULT 0,
			valid_until DATETIME NOT NULL,
			cancelled_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX idx_subscriptions_user_artist
			ON subscriptions (user_id, artist_id)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

func (f *fixture) seedTransaction(t *testing.T, status paymentdomain.TransactionStatus, itemType paymentdomain.ItemType) *paymentdomain.Transaction {
	t.Helper()
	now := f.clock.Now()
	tx := &paymentdomain.Transaction{
		ID:        f.node.Generate(),
		UserID:    f.node.Generate(),
		ItemType:  itemType,
		ItemID:    f.node.Generate(),
		ArtistID:  f.node.Generate(),
		Amount:    499,
		Currency:  "USD",
		Provider:  "stripe",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == paymentdomain.StatusPaid {
		tx.PaidAt = &now
		tx.ProviderPaymentID = "pi_seeded"
	}
	if err := paymentrepo.ProvideTransactions().Insert(context.Background(), f.db, tx); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return tx
}

func (f *fixture) countRows(t *testing.T, table string) int {
	t.Helper()
	var count int
	if err := f.db.Raw("SELECT COUNT(1) FROM " + table).Scan(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func (f *fixture) transactionStatus(t *testing.T, id snowflake.ID) paymentdomain.TransactionStatus {
	t.Helper()
	var status string
	if err := f.db.Raw(`SELECT status FROM transactions WHERE id = ?`, id).Scan(&status).Error; err != nil {
		t.Fatalf("read status: %v", err)
	}
	return paymentdomain.TransactionStatus(status)
}

func successEvent(tx *paymentdomain.Transaction, eventID string) *paymentdomain.SettlementEvent {
	return &paymentdomain.SettlementEvent{
		Provider:          "stripe",
		ProviderEventID:   eventID,
		Kind:              paymentdomain.EventPaymentSucceeded,
		TransactionID:     tx.ID,
		UserID:            tx.UserID,
		ProviderPaymentID: "pi_123",
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		RawPayload:        []byte(`{"id":"evt"}`),
	}
}

func TestSettleSongPurchase(t *testing.T) {
	f := setupCoordinator(t)
	tx := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeSong)

	result, err := f.svc.Settle(context.Background(), successEvent(tx, "evt_song_1"))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Status != domain.StatusSettled {
		t.Fatalf("expected settled, got %s", result.Status)
	}
	if got := f.transactionStatus(t, tx.ID); got != paymentdomain.StatusPaid {
		t.Fatalf("expected paid, got %s", got)
	}
	if count := f.countRows(t, "entitlements"); count != 1 {
		t.Fatalf("expected 1 entitlement, got %d", count)
	}
	if count := f.countRows(t, "purchase_history"); count != 1 {
		t.Fatalf("expected 1 history entry, got %d", count)
	}
	if count := f.countRows(t, "webhook_events"); count != 1 {
		t.Fatalf("expected 1 ledger row, got %d", count)
	}
}

func TestSettleDuplicateDelivery(t *testing.T) {
	f := setupCoordinator(t)
	tx := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeSong)
	event := successEvent(tx, "evt_dup")

	if _, err := f.svc.Settle(context.Background(), event); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	result, err := f.svc.Settle(context.Background(), event)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if result.Status != domain.StatusAlreadyProcessed {
		t.Fatalf("expected already_processed, got %s", result.Status)
	}
	if count := f.countRows(t, "entitlements"); count != 1 {
		t.Fatalf("expected 1 entitlement after duplicate, got %d", count)
	}
	if count := f.countRows(t, "purchase_history"); count != 1 {
		t.Fatalf("expected 1 history entry after duplicate, got %d", count)
	}
}

func TestSettlePaymentFailed(t *testing.T) {
	f := setupCoordinator(t)
	tx := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeAlbum)

	result, err := f.svc.Settle(context.Background(), &paymentdomain.SettlementEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_fail",
		Kind:            paymentdomain.EventPaymentFailed,
		TransactionID:   tx.ID,
		FailureReason:   "card_declined",
		RawPayload:      []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Status != domain.StatusSettled {
		t.Fatalf("expected settled, got %s", result.Status)
	}
	if got := f.transactionStatus(t, tx.ID); got != paymentdomain.StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
	if count := f.countRows(t, "entitlements"); count != 0 {
		t.Fatalf("expected no entitlements, got %d", count)
	}

	var reason string
	if err := f.db.Raw(`SELECT failure_reason FROM transactions WHERE id = ?`, tx.ID).Scan(&reason).Error; err != nil {
		t.Fatalf("read failure reason: %v", err)
	}
	if reason != "card_declined" {
		t.Fatalf("expected card_declined, got %q", reason)
	}
}

func TestSettleRefundRevokesEntitlement(t *testing.T) {
	f := setupCoordinator(t)
	tx := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeSong)

	if _, err := f.svc.Settle(context.Background(), successEvent(tx, "evt_pay")); err != nil {
		t.Fatalf("settle payment: %v", err)
	}

	result, err := f.svc.Settle(context.Background(), &paymentdomain.SettlementEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_refund",
		Kind:            paymentdomain.EventRefundIssued,
		TransactionID:   tx.ID,
		Amount:          tx.Amount,
		Currency:        tx.Currency,
		RawPayload:      []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("settle refund: %v", err)
	}
	if result.Status != domain.StatusSettled {
		t.Fatalf("expected settled, got %s", result.Status)
	}
	if got := f.transactionStatus(t, tx.ID); got != paymentdomain.StatusRefunded {
		t.Fatalf("expected refunded, got %s", got)
	}

	var revoked int
	if err := f.db.Raw(`SELECT COUNT(1) FROM entitlements WHERE revoked_at IS NOT NULL`).Scan(&revoked).Error; err != nil {
		t.Fatalf("count revoked: %v", err)
	}
	if revoked != 1 {
		t.Fatalf("expected 1 revoked entitlement, got %d", revoked)
	}
	if count := f.countRows(t, "purchase_history"); count != 2 {
		t.Fatalf("expected purchase and refund history, got %d rows", count)
	}
}

func TestSettleRefundBeforePaymentConflicts(t *testing.T) {
	f := setupCoordinator(t)
	tx := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeSong)

	result, err := f.svc.Settle(context.Background(), &paymentdomain.SettlementEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_early_refund",
		Kind:            paymentdomain.EventRefundIssued,
		TransactionID:   tx.ID,
		RawPayload:      []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Status != domain.StatusConflict {
		t.Fatalf("expected conflict, got %s", result.Status)
	}
	if got := f.transactionStatus(t, tx.ID); got != paymentdomain.StatusPending {
		t.Fatalf("expected pending, got %s", got)
	}
	// The claim still commits so a replay of this exact event stays a no-op.
	if count := f.countRows(t, "webhook_events"); count != 1 {
		t.Fatalf("expected claim row, got %d", count)
	}
}

func TestSettleFailureAfterRefundKeepsRefunded(t *testing.T) {
	f := setupCoordinator(t)
	tx := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeSong)

	if _, err := f.svc.Settle(context.Background(), successEvent(tx, "evt_a")); err != nil {
		t.Fatalf("settle payment: %v", err)
	}
	if _, err := f.svc.Settle(context.Background(), &paymentdomain.SettlementEvent{
		Provider: "stripe", ProviderEventID: "evt_b",
		Kind: paymentdomain.EventRefundIssued, TransactionID: tx.ID,
		RawPayload: []byte(`{}`),
	}); err != nil {
		t.Fatalf("settle refund: %v", err)
	}

	result, err := f.svc.Settle(context.Background(), &paymentdomain.SettlementEvent{
		Provider: "stripe", ProviderEventID: "evt_c",
		Kind: paymentdomain.EventPaymentFailed, TransactionID: tx.ID,
		FailureReason: "late failure", RawPayload: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("settle late failure: %v", err)
	}
	if result.Status != domain.StatusConflict {
		t.Fatalf("expected conflict, got %s", result.Status)
	}
	if got := f.transactionStatus(t, tx.ID); got != paymentdomain.StatusRefunded {
		t.Fatalf("expected refunded to stick, got %s", got)
	}
}

func TestSettleUnknownTransactionRollsBackClaim(t *testing.T) {
	f := setupCoordinator(t)

	_, err := f.svc.Settle(context.Background(), &paymentdomain.SettlementEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_ghost",
		Kind:            paymentdomain.EventPaymentSucceeded,
		TransactionID:   f.node.Generate(),
		RawPayload:      []byte(`{}`),
	})
	if !errors.Is(err, paymentdomain.ErrTransactionNotFound) {
		t.Fatalf("expected ErrTransactionNotFound, got %v", err)
	}
	if count := f.countRows(t, "webhook_events"); count != 0 {
		t.Fatalf("expected claim rolled back, got %d rows", count)
	}
}

func TestSettleMissingTransactionIDClaimsNothing(t *testing.T) {
	f := setupCoordinator(t)

	_, err := f.svc.Settle(context.Background(), &paymentdomain.SettlementEvent{
		Provider:        "stripe",
		ProviderEventID: "evt_no_ref",
		Kind:            paymentdomain.EventPaymentSucceeded,
		RawPayload:      []byte(`{}`),
	})
	if !errors.Is(err, paymentdomain.ErrMissingTransactionID) {
		t.Fatalf("expected ErrMissingTransactionID, got %v", err)
	}
	if count := f.countRows(t, "webhook_events"); count != 0 {
		t.Fatalf("expected no ledger rows, got %d", count)
	}
}

func TestSettleSubscriptionPurchaseUpsertsOneRow(t *testing.T) {
	f := setupCoordinator(t)
	tx := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeArtistSubscription)

	periodEnd := f.clock.Now().Add(45 * 24 * time.Hour)
	event := successEvent(tx, "evt_sub_1")
	event.PeriodEnd = &periodEnd
	event.ExternalSubscriptionID = "sub_abc"

	result, err := f.svc.Settle(context.Background(), event)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Subscription == nil {
		t.Fatal("expected subscription in result")
	}
	if !result.Subscription.ValidUntil.Equal(periodEnd) {
		t.Fatalf("expected valid_until %v, got %v", periodEnd, result.Subscription.ValidUntil)
	}
	if count := f.countRows(t, "subscriptions"); count != 1 {
		t.Fatalf("expected 1 subscription, got %d", count)
	}
	// Subscription purchases grant access via the subscription row only.
	if count := f.countRows(t, "entitlements"); count != 0 {
		t.Fatalf("expected no entitlement rows, got %d", count)
	}
}

func TestSettleSubscriptionRenewalExtendsInPlace(t *testing.T) {
	f := setupCoordinator(t)
	first := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeArtistSubscription)

	firstEnd := f.clock.Now().Add(30 * 24 * time.Hour)
	event := successEvent(first, "evt_renew_1")
	event.PeriodEnd = &firstEnd
	if _, err := f.svc.Settle(context.Background(), event); err != nil {
		t.Fatalf("settle first: %v", err)
	}

	// Renewal for the same (user, artist) pair through a new transaction.
	renewal := &paymentdomain.Transaction{
		ID:        f.node.Generate(),
		UserID:    first.UserID,
		ItemType:  paymentdomain.ItemTypeArtistSubscription,
		ItemID:    first.ItemID,
		ArtistID:  first.ArtistID,
		Amount:    499,
		Currency:  "USD",
		Provider:  "stripe",
		Status:    paymentdomain.StatusPending,
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	}
	if err := paymentrepo.ProvideTransactions().Insert(context.Background(), f.db, renewal); err != nil {
		t.Fatalf("seed renewal: %v", err)
	}

	secondEnd := f.clock.Now().Add(60 * 24 * time.Hour)
	renewEvent := successEvent(renewal, "evt_renew_2")
	renewEvent.PeriodEnd = &secondEnd

	result, err := f.svc.Settle(context.Background(), renewEvent)
	if err != nil {
		t.Fatalf("settle renewal: %v", err)
	}
	if count := f.countRows(t, "subscriptions"); count != 1 {
		t.Fatalf("expected single subscription row, got %d", count)
	}
	if !result.Subscription.ValidUntil.Equal(secondEnd) {
		t.Fatalf("expected extension to %v, got %v", secondEnd, result.Subscription.ValidUntil)
	}
}

func TestSettleStaleRenewalDoesNotShortenPeriod(t *testing.T) {
	f := setupCoordinator(t)
	tx := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeArtistSubscription)

	farEnd := f.clock.Now().Add(90 * 24 * time.Hour)
	event := successEvent(tx, "evt_far")
	event.PeriodEnd = &farEnd
	if _, err := f.svc.Settle(context.Background(), event); err != nil {
		t.Fatalf("settle: %v", err)
	}

	stale := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeArtistSubscription)
	if err := f.db.Exec(`UPDATE transactions SET user_id = ?, artist_id = ? WHERE id = ?`,
		tx.UserID, tx.ArtistID, stale.ID).Error; err != nil {
		t.Fatalf("align stale transaction: %v", err)
	}

	nearEnd := f.clock.Now().Add(10 * 24 * time.Hour)
	staleEvent := successEvent(stale, "evt_near")
	staleEvent.PeriodEnd = &nearEnd

	result, err := f.svc.Settle(context.Background(), staleEvent)
	if err != nil {
		t.Fatalf("settle stale: %v", err)
	}
	if !result.Subscription.ValidUntil.Equal(farEnd) {
		t.Fatalf("expected valid_until to stay %v, got %v", farEnd, result.Subscription.ValidUntil)
	}
}

func TestSettleSubscriptionDefaultPeriod(t *testing.T) {
	f := setupCoordinator(t)
	tx := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeArtistSubscription)

	result, err := f.svc.Settle(context.Background(), successEvent(tx, "evt_default"))
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	want := f.clock.Now().Add(30 * 24 * time.Hour)
	if !result.Subscription.ValidUntil.Equal(want) {
		t.Fatalf("expected default period end %v, got %v", want, result.Subscription.ValidUntil)
	}
}

func TestSettleSubscriptionCancelled(t *testing.T) {
	f := setupCoordinator(t)
	tx := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeArtistSubscription)

	event := successEvent(tx, "evt_sub_active")
	event.ExternalSubscriptionID = "sub_xyz"
	if _, err := f.svc.Settle(context.Background(), event); err != nil {
		t.Fatalf("settle: %v", err)
	}

	result, err := f.svc.Settle(context.Background(), &paymentdomain.SettlementEvent{
		Provider:               "stripe",
		ProviderEventID:        "evt_cancel",
		Kind:                   paymentdomain.EventSubscriptionCancelled,
		ExternalSubscriptionID: "sub_xyz",
		RawPayload:             []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("settle cancel: %v", err)
	}
	if result.Status != domain.StatusSettled {
		t.Fatalf("expected settled, got %s", result.Status)
	}

	var status string
	if err := f.db.Raw(`SELECT status FROM subscriptions WHERE external_subscription_id = ?`, "sub_xyz").Scan(&status).Error; err != nil {
		t.Fatalf("read subscription status: %v", err)
	}
	if status != "cancelled" {
		t.Fatalf("expected cancelled, got %s", status)
	}
	// Access keeps running until valid_until; cancellation does not zero it.
	if !result.Subscription.HasAccess(f.clock.Now()) {
		t.Fatal("expected access to continue until period end")
	}
}

func TestSettleCancelUnknownSubscription(t *testing.T) {
	f := setupCoordinator(t)

	result, err := f.svc.Settle(context.Background(), &paymentdomain.SettlementEvent{
		Provider:               "stripe",
		ProviderEventID:        "evt_cancel_ghost",
		Kind:                   paymentdomain.EventSubscriptionCancelled,
		ExternalSubscriptionID: "sub_ghost",
		RawPayload:             []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if result.Status != domain.StatusUnhandled {
		t.Fatalf("expected unhandled, got %s", result.Status)
	}
}

// failingEntitlements wraps the real repository and fails the grant, proving
// the whole unit of work rolls back together.
type failingEntitlements struct {
	entitlementdomain.Repository
}

func (f *failingEntitlements) Grant(ctx context.Context, db *gorm.DB, e *entitlementdomain.Entitlement) (bool, error) {
	return false, errors.New("entitlement storage down")
}

func TestSettleAtomicRollback(t *testing.T) {
	f := setupCoordinator(t)
	tx := f.seedTransaction(t, paymentdomain.StatusPending, paymentdomain.ItemTypeSong)

	svc := NewService(Params{
		DB:            f.db,
		Log:           zap.NewNop(),
		GenID:         f.node,
		Clock:         f.clock,
		Cfg:           config.Config{SubscriptionDefaultPeriodDays: 30, SettlementTimeoutSeconds: 5},
		Transactions:  paymentrepo.ProvideTransactions(),
		Events:        paymentrepo.ProvideEvents(),
		Entitlements:  &failingEntitlements{Repository: entitlementrepo.Provide()},
		Subscriptions: subscriptionrepo.Provide(),
	})

	_, err := svc.Settle(context.Background(), successEvent(tx, "evt_atomic"))
	if err == nil {
		t.Fatal("expected error from failing entitlement store")
	}

	if got := f.transactionStatus(t, tx.ID); got != paymentdomain.StatusPending {
		t.Fatalf("expected transition rolled back to pending, got %s", got)
	}
	if count := f.countRows(t, "webhook_events"); count != 0 {
		t.Fatalf("expected claim rolled back, got %d rows", count)
	}
	if count := f.countRows(t, "purchase_history"); count != 0 {
		t.Fatalf("expected no history rows, got %d", count)
	}

	// The provider redelivers; this time the store works and it settles clean.
	result, err := f.svc.Settle(context.Background(), successEvent(tx, "evt_atomic"))
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if result.Status != domain.StatusSettled {
		t.Fatalf("expected settled on redelivery, got %s", result.Status)
	}
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
