// Package stripe verifies and normalizes Stripe webhooks.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
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
	return "stripe"
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

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte, headers http.Header) (*domain.SettlementEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded":
		return a.parseIntent(event, payload, domain.EventPaymentSucceeded)
	case "payment_intent.payment_failed":
		return a.parseIntent(event, payload, domain.EventPaymentFailed)
	case "charge.refunded":
		return a.parseCharge(event, payload)
	case "customer.subscription.deleted":
		return a.parseSubscriptionDeleted(event, payload)
	default:
		return nil, domain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	AmountReceived   int64             `json:"amount_received"`
	Currency         string            `json:"currency"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *stripeAPIError   `json:"last_payment_error"`
}

type stripeAPIError struct {
	Message string `json:"message"`
}

type stripeCharge struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Currency       string            `json:"currency"`
	Metadata       map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID               string            `json:"id"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
}

func (a *Adapter) parseIntent(event stripeEvent, payload []byte, kind domain.EventKind) (*domain.SettlementEvent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	out := &domain.SettlementEvent{
		Provider:          "stripe",
		ProviderEventID:   event.ID,
		Kind:              kind,
		TransactionID:     metadataID(intent.Metadata, "transaction_id"),
		UserID:            metadataID(intent.Metadata, "user_id"),
		Item:              metadataItem(intent.Metadata),
		ProviderPaymentID: intent.ID,
		PeriodEnd:         unixTime(intent.CurrentPeriodEnd),
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(intent.Currency)),
		RawPayload:        payload,
	}
	if kind == domain.EventPaymentFailed && intent.LastPaymentError != nil {
		out.FailureReason = strings.TrimSpace(intent.LastPaymentError.Message)
	}
	return out, nil
}

func (a *Adapter) parseCharge(event stripeEvent, payload []byte) (*domain.SettlementEvent, error) {
	var charge stripeCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	amount := charge.AmountRefunded
	if amount <= 0 {
		amount = charge.Amount
	}

	return &domain.SettlementEvent{
		Provider:          "stripe",
		ProviderEventID:   event.ID,
		Kind:              domain.EventRefundIssued,
		TransactionID:     metadataID(charge.Metadata, "transaction_id"),
		UserID:            metadataID(charge.Metadata, "user_id"),
		Item:              metadataItem(charge.Metadata),
		ProviderPaymentID: charge.ID,
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(charge.Currency)),
		RawPayload:        payload,
	}, nil
}

func (a *Adapter) parseSubscriptionDeleted(event stripeEvent, payload []byte) (*domain.SettlementEvent, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.SettlementEvent{
		Provider:               "stripe",
		ProviderEventID:        event.ID,
		Kind:                   domain.EventSubscriptionCancelled,
		UserID:                 metadataID(sub.Metadata, "user_id"),
		Item:                   metadataItem(sub.Metadata),
		ExternalSubscriptionID: sub.ID,
		PeriodEnd:              unixTime(sub.CurrentPeriodEnd),
		RawPayload:             payload,
	}, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("malformed signature header")
	}
	return timestamp, signatures, nil
}

func metadataID(metadata map[string]string, key string) snowflake.ID {
	raw := strings.TrimSpace(metadata[key])
	if raw == "" {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}

// metadataItem rebuilds the item variant from the metadata the platform
// attached at initiation. Nil when absent; the transaction row is then
// authoritative.
func metadataItem(metadata map[string]string) domain.Item {
	switch domain.ItemType(strings.TrimSpace(metadata["item_type"])) {
	case domain.ItemTypeSong:
		return domain.SongItem{SongID: metadataID(metadata, "item_id")}
	case domain.ItemTypeAlbum:
		return domain.AlbumItem{AlbumID: metadataID(metadata, "item_id")}
	case domain.ItemTypeArtistSubscription:
		artistID := metadataID(metadata, "artist_id")
		if artistID == 0 {
			artistID = metadataID(metadata, "item_id")
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
