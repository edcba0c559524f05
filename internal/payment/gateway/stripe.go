// Package gateway holds the outbound provider clients used at checkout and
// refund time. Settlement never goes through these; it arrives as webhooks.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/soundhaven/soundhaven/internal/config"
	"github.com/soundhaven/soundhaven/internal/payment/domain"
	"go.uber.org/zap"
)

const stripeBaseURL = "https://api.stripe.com"

type StripeGateway struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewStripeGateway(cfg config.Config, log *zap.Logger) *StripeGateway {
	return &StripeGateway{
		apiKey:     cfg.StripeAPIKey,
		baseURL:    stripeBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.Named("gateway.stripe"),
	}
}

func (g *StripeGateway) Provider() string { return "stripe" }

// CreateOrder creates a PaymentIntent carrying the transaction id and item
// fields as metadata. The webhook path depends on that metadata to route the
// confirmation back to the transaction.
func (g *StripeGateway) CreateOrder(ctx context.Context, tx *domain.Transaction) (*domain.GatewayOrder, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(tx.Amount, 10))
	form.Set("currency", strings.ToLower(tx.Currency))
	form.Set("metadata[transaction_id]", tx.ID.String())
	form.Set("metadata[user_id]", tx.UserID.String())
	form.Set("metadata[item_type]", string(tx.ItemType))
	form.Set("metadata[item_id]", tx.ItemID.String())
	if tx.ArtistID != 0 {
		form.Set("metadata[artist_id]", tx.ArtistID.String())
	}

	var intent struct {
		ID           string `json:"id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := g.post(ctx, "/v1/payment_intents", form, &intent); err != nil {
		return nil, err
	}

	return &domain.GatewayOrder{
		ProviderOrderID: intent.ID,
		ClientSecret:    intent.ClientSecret,
	}, nil
}

func (g *StripeGateway) IssueRefund(ctx context.Context, providerPaymentID string) error {
	if strings.TrimSpace(providerPaymentID) == "" {
		return domain.ErrNotRefundable
	}
	form := url.Values{}
	form.Set("payment_intent", providerPaymentID)
	return g.post(ctx, "/v1/refunds", form, &struct{}{})
}

func (g *StripeGateway) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayError, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayError, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.log.Warn("stripe request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", domain.ErrGatewayError, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayError, err)
	}
	return nil
}
