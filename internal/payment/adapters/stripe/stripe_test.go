package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/soundhaven/soundhaven/internal/payment/domain"
)

const testSecret = "whsec_test"

func signedHeaders(t *testing.T, payload []byte) http.Header {
	t.Helper()
	timestamp := "1717243200"
	mac := hmac.New(sha256.New, []byte(testSecret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%s.%s", timestamp, payload)))
	signature := hex.EncodeToString(mac.Sum(nil))

	headers := http.Header{}
	headers.Set("Stripe-Signature", fmt.Sprintf("t=%s,v1=%s", timestamp, signature))
	return headers
}

func newAdapter(t *testing.T) domain.PaymentAdapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(domain.AdapterConfig{WebhookSecret: testSecret})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return adapter
}

func TestVerifyAcceptsValidSignature(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	if err := adapter.Verify(context.Background(), payload, signedHeaders(t, payload)); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_1"}`)
	headers := signedHeaders(t, payload)

	err := adapter.Verify(context.Background(), []byte(`{"id":"evt_2"}`), headers)
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyRejectsMissingHeader(t *testing.T) {
	adapter := newAdapter(t)
	err := adapter.Verify(context.Background(), []byte(`{}`), http.Header{})
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestParsePaymentIntentSucceeded(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_42",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_42",
			"amount": 999,
			"amount_received": 999,
			"currency": "usd",
			"metadata": {
				"transaction_id": "1537204588186669056",
				"user_id": "1537204588186669057",
				"item_type": "song",
				"item_id": "1537204588186669058"
			}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind != domain.EventPaymentSucceeded {
		t.Fatalf("expected payment_succeeded, got %s", event.Kind)
	}
	if event.ProviderEventID != "evt_42" {
		t.Fatalf("expected evt_42, got %s", event.ProviderEventID)
	}
	if event.TransactionID.String() != "1537204588186669056" {
		t.Fatalf("unexpected transaction id %s", event.TransactionID)
	}
	if event.Currency != "USD" || event.Amount != 999 {
		t.Fatalf("unexpected amount %d %s", event.Amount, event.Currency)
	}
	item, ok := event.Item.(domain.SongItem)
	if !ok {
		t.Fatalf("expected SongItem, got %T", event.Item)
	}
	if item.SongID.String() != "1537204588186669058" {
		t.Fatalf("unexpected song id %s", item.SongID)
	}
}

func TestParsePaymentFailedCarriesReason(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_43",
		"type": "payment_intent.payment_failed",
		"data": {"object": {
			"id": "pi_43",
			"amount": 999,
			"currency": "usd",
			"metadata": {"transaction_id": "1537204588186669056"},
			"last_payment_error": {"message": "Your card was declined."}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind != domain.EventPaymentFailed {
		t.Fatalf("expected payment_failed, got %s", event.Kind)
	}
	if event.FailureReason != "Your card was declined." {
		t.Fatalf("unexpected failure reason %q", event.FailureReason)
	}
}

func TestParseChargeRefundedUsesRefundedAmount(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_44",
		"type": "charge.refunded",
		"data": {"object": {
			"id": "ch_44",
			"amount": 999,
			"amount_refunded": 500,
			"currency": "usd",
			"metadata": {"transaction_id": "1537204588186669056"}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind != domain.EventRefundIssued {
		t.Fatalf("expected refund_issued, got %s", event.Kind)
	}
	if event.Amount != 500 {
		t.Fatalf("expected refunded amount 500, got %d", event.Amount)
	}
}

func TestParseSubscriptionDeleted(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{
		"id": "evt_45",
		"type": "customer.subscription.deleted",
		"data": {"object": {
			"id": "sub_45",
			"current_period_end": 1719835200,
			"metadata": {"user_id": "1537204588186669057"}
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload, http.Header{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.Kind != domain.EventSubscriptionCancelled {
		t.Fatalf("expected subscription_cancelled, got %s", event.Kind)
	}
	if event.ExternalSubscriptionID != "sub_45" {
		t.Fatalf("unexpected subscription id %s", event.ExternalSubscriptionID)
	}
	if event.PeriodEnd == nil || event.PeriodEnd.Unix() != 1719835200 {
		t.Fatalf("unexpected period end %v", event.PeriodEnd)
	}
}

func TestParseIgnoresUnknownEventType(t *testing.T) {
	adapter := newAdapter(t)
	payload := []byte(`{"id":"evt_46","type":"invoice.created","data":{"object":{}}}`)

	_, err := adapter.Parse(context.Background(), payload, http.Header{})
	if !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("expected ErrEventIgnored, got %v", err)
	}
}
