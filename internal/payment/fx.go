package payment

import (
	"github.com/soundhaven/soundhaven/internal/payment/adapters"
	"github.com/soundhaven/soundhaven/internal/payment/adapters/razorpay"
	"github.com/soundhaven/soundhaven/internal/payment/adapters/stripe"
	"github.com/soundhaven/soundhaven/internal/payment/domain"
	"github.com/soundhaven/soundhaven/internal/payment/gateway"
	"github.com/soundhaven/soundhaven/internal/payment/repository"
	"github.com/soundhaven/soundhaven/internal/payment/service"
	"github.com/soundhaven/soundhaven/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.ProvideTransactions,
		repository.ProvideEvents,
		provideRegistry,
		fx.Annotate(
			gateway.NewStripeGateway,
			fx.As(new(domain.Gateway)),
			fx.ResultTags(`group:"payment_gateways"`),
		),
		fx.Annotate(
			gateway.NewRazorpayGateway,
			fx.As(new(domain.Gateway)),
			fx.ResultTags(`group:"payment_gateways"`),
		),
		service.NewService,
		webhook.NewService,
	),
)

func provideRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		stripe.NewFactory(),
		razorpay.NewFactory(),
	)
}
