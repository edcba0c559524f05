package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soundhaven/soundhaven/internal/cache"
	"github.com/soundhaven/soundhaven/internal/clock"
	"github.com/soundhaven/soundhaven/internal/config"
	"github.com/soundhaven/soundhaven/internal/entitlement"
	entitlementdomain "github.com/soundhaven/soundhaven/internal/entitlement/domain"
	"github.com/soundhaven/soundhaven/internal/events"
	"github.com/soundhaven/soundhaven/internal/migration"
	"github.com/soundhaven/soundhaven/internal/observability"
	"github.com/soundhaven/soundhaven/internal/payment"
	paymentdomain "github.com/soundhaven/soundhaven/internal/payment/domain"
	"github.com/soundhaven/soundhaven/internal/providers/email"
	"github.com/soundhaven/soundhaven/internal/reactors"
	"github.com/soundhaven/soundhaven/internal/settlement"
	"github.com/soundhaven/soundhaven/internal/subscription"
	subscriptiondomain "github.com/soundhaven/soundhaven/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	observability.Module,
	migration.Module,
	events.Module,
	cache.Module,
	email.Module,
	payment.Module,
	entitlement.Module,
	subscription.Module,
	settlement.Module,
	reactors.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(observability.TracingMiddleware())
	r.Use(metrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	db            *gorm.DB
	clock         clock.Clock
	webhookSvc    paymentdomain.Service
	checkoutSvc   paymentdomain.CheckoutService
	events        paymentdomain.EventRepository
	entitlements  entitlementdomain.Repository
	subscriptions subscriptiondomain.Repository
}

type ServerParams struct {
	fx.In

	Engine        *gin.Engine
	DB            *gorm.DB
	Clock         clock.Clock
	WebhookSvc    paymentdomain.Service
	CheckoutSvc   paymentdomain.CheckoutService
	Events        paymentdomain.EventRepository
	Entitlements  entitlementdomain.Repository
	Subscriptions subscriptiondomain.Repository
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:        p.Engine,
		db:            p.DB,
		clock:         p.Clock,
		webhookSvc:    p.WebhookSvc,
		checkoutSvc:   p.CheckoutSvc,
		events:        p.Events,
		entitlements:  p.Entitlements,
		subscriptions: p.Subscriptions,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.POST("/webhooks/:provider", s.handleWebhook)

	api := s.engine.Group("/v1")
	api.GET("/webhooks/:provider/events/:event_id", s.getWebhookEvent)
	api.POST("/payments", s.createPayment)
	api.GET("/payments/:id", s.getPayment)
	api.POST("/payments/:id/refund", s.refundPayment)
	api.GET("/users/:user_id/entitlements", s.listEntitlements)
	api.GET("/users/:user_id/purchases", s.listPurchaseHistory)
	api.GET("/users/:user_id/subscriptions", s.listSubscriptions)
	api.GET("/users/:user_id/artists/:artist_id/subscription", s.getSubscriptionStatus)
}
