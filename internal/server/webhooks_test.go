package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/soundhaven/soundhaven/internal/payment/domain"
	"gorm.io/gorm"
)

type webhookServiceStub struct {
	err      error
	calls    int
	provider string
	payload  []byte
}

func (s *webhookServiceStub) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	s.calls++
	s.provider = provider
	s.payload = payload
	return s.err
}

type eventRepoStub struct {
	event *paymentdomain.WebhookEvent
}

func (s *eventRepoStub) Claim(ctx context.Context, db *gorm.DB, event *paymentdomain.WebhookEvent) (bool, error) {
	return false, nil
}

func (s *eventRepoStub) Find(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*paymentdomain.WebhookEvent, error) {
	if s.event != nil && s.event.Provider == provider && s.event.ProviderEventID == providerEventID {
		return s.event, nil
	}
	return nil, nil
}

func newTestRouter(t *testing.T, svc paymentdomain.Service, events paymentdomain.EventRepository) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Engine:     engine,
		WebhookSvc: svc,
		Events:     events,
	})
	return engine
}

func postWebhook(t *testing.T, engine *gin.Engine, provider string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func TestWebhookBadSignatureReturns400(t *testing.T) {
	svc := &webhookServiceStub{err: paymentdomain.ErrInvalidSignature}
	engine := newTestRouter(t, svc, &eventRepoStub{})

	rec := postWebhook(t, engine, "stripe", []byte(`{"id":"evt_1"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	if errObj["type"] != "invalid_signature" {
		t.Fatalf("expected invalid_signature, got %v", errObj["type"])
	}
}

func TestWebhookDuplicateDeliveryReturns200(t *testing.T) {
	svc := &webhookServiceStub{err: paymentdomain.ErrEventAlreadyProcessed}
	engine := newTestRouter(t, svc, &eventRepoStub{})

	rec := postWebhook(t, engine, "stripe", []byte(`{"id":"evt_1"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate must be acknowledged with 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "already_processed" {
		t.Fatalf("expected already_processed, got %v", body["status"])
	}
}

func TestWebhookStorageFailureReturns500(t *testing.T) {
	svc := &webhookServiceStub{err: errors.New("connection reset by peer")}
	engine := newTestRouter(t, svc, &eventRepoStub{})

	rec := postWebhook(t, engine, "razorpay", []byte(`{"event":"payment.captured"}`))

	// 5xx tells the provider to redeliver.
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error envelope, got %v", body)
	}
	if errObj["type"] != "internal_error" {
		t.Fatalf("expected internal_error, got %v", errObj["type"])
	}
}

func TestWebhookSettledDeliveryReturns200(t *testing.T) {
	svc := &webhookServiceStub{}
	engine := newTestRouter(t, svc, &eventRepoStub{})

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	rec := postWebhook(t, engine, "stripe", payload)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Fatalf("expected ok, got %v", body["status"])
	}
	if svc.calls != 1 {
		t.Fatalf("expected one ingestion call, got %d", svc.calls)
	}
	if svc.provider != "stripe" {
		t.Fatalf("expected provider stripe, got %q", svc.provider)
	}
	if !bytes.Equal(svc.payload, payload) {
		t.Fatalf("raw body must reach the service unmodified")
	}
}

func TestWebhookUnknownProviderReturns404(t *testing.T) {
	svc := &webhookServiceStub{err: paymentdomain.ErrProviderNotFound}
	engine := newTestRouter(t, svc, &eventRepoStub{})

	rec := postWebhook(t, engine, "paypal", []byte(`{}`))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestWebhookEventLookup(t *testing.T) {
	events := &eventRepoStub{event: &paymentdomain.WebhookEvent{
		ID:              42,
		Provider:        "stripe",
		ProviderEventID: "evt_1",
		EventKind:       "payment_succeeded",
		ReceivedAt:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}}
	engine := newTestRouter(t, &webhookServiceStub{}, events)

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/stripe/events/evt_1", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["event"] == nil {
		t.Fatalf("expected ledger row in response, got %v", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/webhooks/stripe/events/evt_missing", nil)
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown event id, got %d", rec.Code)
	}
}
