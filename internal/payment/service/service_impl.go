package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/soundhaven/soundhaven/internal/clock"
	"github.com/soundhaven/soundhaven/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Transactions domain.TransactionRepository
	Gateways     []domain.Gateway `group:"payment_gateways"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	transactions domain.TransactionRepository
	gateways     map[string]domain.Gateway
}

func NewService(p Params) domain.CheckoutService {
	gateways := make(map[string]domain.Gateway, len(p.Gateways))
	for _, gateway := range p.Gateways {
		if gateway == nil {
			continue
		}
		gateways[strings.ToLower(gateway.Provider())] = gateway
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.checkout"),
		genID:        p.GenID,
		clock:        p.Clock,
		transactions: p.Transactions,
		gateways:     gateways,
	}
}

func (s *Service) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (*domain.CreatePaymentResponse, error) {
	if req.UserID == 0 || req.Amount <= 0 {
		return nil, domain.ErrInvalidPayload
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return nil, domain.ErrInvalidPayload
	}

	item, err := req.Item()
	if err != nil {
		return nil, err
	}

	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	gateway, ok := s.gateways[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}

	now := s.clock.Now()
	transaction := &domain.Transaction{
		ID:        s.genID.Generate(),
		UserID:    req.UserID,
		ItemType:  item.Type(),
		ItemID:    req.ItemID,
		ArtistID:  req.ArtistID,
		Amount:    req.Amount,
		Currency:  currency,
		Provider:  provider,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if sub, ok := item.(domain.ArtistSubscriptionItem); ok {
		transaction.ArtistID = sub.ArtistID
	}

	if err := s.transactions.Insert(ctx, s.db, transaction); err != nil {
		return nil, err
	}

	order, err := gateway.CreateOrder(ctx, transaction)
	if err != nil {
		// The pending row stays; it fails or gets retried by the client, and
		// only a provider webhook can move it forward.
		s.log.Error("gateway order creation failed",
			zap.String("provider", provider),
			zap.Int64("transaction_id", int64(transaction.ID)),
			zap.Error(err),
		)
		return nil, err
	}

	return &domain.CreatePaymentResponse{Transaction: transaction, Order: order}, nil
}

func (s *Service) RequestRefund(ctx context.Context, transactionID snowflake.ID) (*domain.Transaction, error) {
	transaction, err := s.transactions.FindByID(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}
	if transaction == nil {
		return nil, domain.ErrTransactionNotFound
	}
	if transaction.Status != domain.StatusPaid {
		return nil, domain.ErrNotRefundable
	}

	gateway, ok := s.gateways[transaction.Provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}

	if err := gateway.IssueRefund(ctx, transaction.ProviderPaymentID); err != nil {
		s.log.Error("refund issuance failed",
			zap.String("provider", transaction.Provider),
			zap.Int64("transaction_id", int64(transaction.ID)),
			zap.Error(err),
		)
		return nil, err
	}

	// Still paid. The refund webhook is what moves it to refunded.
	return transaction, nil
}

func (s *Service) GetTransaction(ctx context.Context, id snowflake.ID) (*domain.Transaction, error) {
	transaction, err := s.transactions.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if transaction == nil {
		return nil, domain.ErrTransactionNotFound
	}
	return transaction, nil
}
