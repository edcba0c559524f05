package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soundhaven/soundhaven/internal/config"
	"github.com/soundhaven/soundhaven/internal/payment/domain"
	"go.uber.org/zap"
)

const razorpayBaseURL = "https://api.razorpay.com"

type RazorpayGateway struct {
	keyID      string
	keySecret  string
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewRazorpayGateway(cfg config.Config, log *zap.Logger) *RazorpayGateway {
	return &RazorpayGateway{
		keyID:      cfg.RazorpayKeyID,
		keySecret:  cfg.RazorpayKeySecret,
		baseURL:    razorpayBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.Named("gateway.razorpay"),
	}
}

func (g *RazorpayGateway) Provider() string { return "razorpay" }

// CreateOrder creates a Razorpay order carrying the transaction id and item
// fields as notes, the metadata the webhook path routes confirmations by.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, tx *domain.Transaction) (*domain.GatewayOrder, error) {
	notes := map[string]string{
		"transaction_id": tx.ID.String(),
		"user_id":        tx.UserID.String(),
		"item_type":      string(tx.ItemType),
		"item_id":        tx.ItemID.String(),
	}
	if tx.ArtistID != 0 {
		notes["artist_id"] = tx.ArtistID.String()
	}

	var order struct {
		ID string `json:"id"`
	}
	err := g.post(ctx, "/v1/orders", map[string]any{
		"amount":   tx.Amount,
		"currency": strings.ToUpper(tx.Currency),
		"receipt":  tx.ID.String(),
		"notes":    notes,
	}, &order)
	if err != nil {
		return nil, err
	}

	return &domain.GatewayOrder{ProviderOrderID: order.ID}, nil
}

func (g *RazorpayGateway) IssueRefund(ctx context.Context, providerPaymentID string) error {
	if strings.TrimSpace(providerPaymentID) == "" {
		return domain.ErrNotRefundable
	}
	path := fmt.Sprintf("/v1/payments/%s/refund", providerPaymentID)
	return g.post(ctx, path, map[string]any{}, &struct{}{})
}

func (g *RazorpayGateway) post(ctx context.Context, path string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayError, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayError, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.log.Warn("razorpay request rejected",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", domain.ErrGatewayError, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrGatewayError, err)
	}
	return nil
}
