// Package razorpay verifies and normalizes Razorpay webhooks.
package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/soundhaven/soundhaven/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "razorpay"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, domain.ErrInvalidProvider
	}
	return &Adapter{webhookSecret: secret}, nil
}

type Adapter struct {
	webhookSecret string
}

// Verify checks the hex HMAC-SHA256 of the raw body against the
// X-Razorpay-Signature header.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get("X-Razorpay-Signature"))
	if signature == "" {
		return domain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*domain.SettlementEvent, error) {
	var event razorpayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	// Razorpay carries the event id in a header, not the body. When the
	// header is missing the idempotency ledger is bypassed downstream and
	// the state machine guards are the only duplicate defense.
	eventID := strings.TrimSpace(headers.Get("X-Razorpay-Event-Id"))

	switch strings.TrimSpace(event.Event) {
	case "payment.captured":
		return a.parsePayment(event, payload, eventID, domain.EventPaymentSucceeded)
	case "payment.failed":
		return a.parsePayment(event, payload, eventID, domain.EventPaymentFailed)
	case "refund.processed":
		return a.parseRefund(event, payload, eventID)
	case "subscription.cancelled":
		return a.parseSubscriptionCancelled(event, payload, eventID)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type razorpayEvent struct {
	Event   string          `json:"event"`
	Payload razorpayPayload `json:"payload"`
}

type razorpayPayload struct {
	Payment      *razorpayEntityWrap `json:"payment"`
	Refund       *razorpayEntityWrap `json:"refund"`
	Subscription *razorpayEntityWrap `json:"subscription"`
}

type razorpayEntityWrap struct {
	Entity razorpayEntity `json:"entity"`
}

type razorpayEntity struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	PaymentID        string            `json:"payment_id"`
	CurrentEnd       int64             `json:"current_end"`
	ErrorDescription string            `json:"error_description"`
	Notes            map[string]string `json:"notes"`
}

func (a *Adapter) parsePayment(event razorpayEvent, payload []byte, eventID string, kind domain.EventKind) (*domain.SettlementEvent, error) {
	if event.Payload.Payment == nil {
		return nil, domain.ErrInvalidPayload
	}
	entity := event.Payload.Payment.Entity
	if strings.TrimSpace(entity.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	out := &domain.SettlementEvent{
		Provider:          "razorpay",
		ProviderEventID:   eventID,
		Kind:              kind,
		TransactionID:     notesID(entity.Notes, "transaction_id"),
		UserID:            notesID(entity.Notes, "user_id"),
		Item:              notesItem(entity.Notes),
		ProviderPaymentID: entity.ID,
		PeriodEnd:         subscriptionPeriodEnd(event),
		Amount:            entity.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(entity.Currency)),
		RawPayload:        payload,
	}
	if kind == domain.EventPaymentFailed {
		out.FailureReason = strings.TrimSpace(entity.ErrorDescription)
	}
	return out, nil
}

func (a *Adapter) parseRefund(event razorpayEvent, payload []byte, eventID string) (*domain.SettlementEvent, error) {
	if event.Payload.Refund == nil {
		return nil, domain.ErrInvalidPayload
	}
	entity := event.Payload.Refund.Entity
	if strings.TrimSpace(entity.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	notes := entity.Notes
	if notesID(notes, "transaction_id") == 0 && event.Payload.Payment != nil {
		notes = event.Payload.Payment.Entity.Notes
	}

	return &domain.SettlementEvent{
		Provider:          "razorpay",
		ProviderEventID:   eventID,
		Kind:              domain.EventRefundIssued,
		TransactionID:     notesID(notes, "transaction_id"),
		UserID:            notesID(notes, "user_id"),
		Item:              notesItem(notes),
		ProviderPaymentID: strings.TrimSpace(entity.PaymentID),
		Amount:            entity.Amount,
		Currency:          strings.ToUpper(strings.TrimSpace(entity.Currency)),
		RawPayload:        payload,
	}, nil
}

func (a *Adapter) parseSubscriptionCancelled(event razorpayEvent, payload []byte, eventID string) (*domain.SettlementEvent, error) {
	if event.Payload.Subscription == nil {
		return nil, domain.ErrInvalidPayload
	}
	entity := event.Payload.Subscription.Entity
	if strings.TrimSpace(entity.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.SettlementEvent{
		Provider:               "razorpay",
		ProviderEventID:        eventID,
		Kind:                   domain.EventSubscriptionCancelled,
		UserID:                 notesID(entity.Notes, "user_id"),
		Item:                   notesItem(entity.Notes),
		ExternalSubscriptionID: entity.ID,
		PeriodEnd:              unixTime(entity.CurrentEnd),
		RawPayload:             payload,
	}, nil
}

func subscriptionPeriodEnd(event razorpayEvent) *time.Time {
	if event.Payload.Subscription == nil {
		return nil
	}
	return unixTime(event.Payload.Subscription.Entity.CurrentEnd)
}

func notesID(notes map[string]string, key string) snowflake.ID {
	raw := strings.TrimSpace(notes[key])
	if raw == "" {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}

func notesItem(notes map[string]string) domain.Item {
	switch domain.ItemType(strings.TrimSpace(notes["item_type"])) {
	case domain.ItemTypeSong:
		return domain.SongItem{SongID: notesID(notes, "item_id")}
	case domain.ItemTypeAlbum:
		return domain.AlbumItem{AlbumID: notesID(notes, "item_id")}
	case domain.ItemTypeArtistSubscription:
		artistID := notesID(notes, "artist_id")
		if artistID == 0 {
			artistID = notesID(notes, "item_id")
		}
		return domain.ArtistSubscriptionItem{ArtistID: artistID}
	default:
		return nil
	}
}

func unixTime(value int64) *time.Time {
	if value <= 0 {
		return nil
	}
	t := time.Unix(value, 0).UTC()
	return &t
}
