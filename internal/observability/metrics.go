package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the settlement core's counters. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry setup.
type Metrics struct {
	registry *prometheus.Registry

	settlementsTotal *prometheus.CounterVec
	webhooksTotal    *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		settlementsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "soundhaven_settlements_total",
			Help: "Settlement outcomes by provider, event kind and result.",
		}, []string{"provider", "kind", "result"}),
		webhooksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "soundhaven_webhooks_total",
			Help: "Webhook deliveries by provider and disposition.",
		}, []string{"provider", "disposition"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "soundhaven_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "soundhaven_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) ObserveSettlement(provider, kind, result string) {
	if m == nil {
		return
	}
	m.settlementsTotal.WithLabelValues(provider, kind, result).Inc()
}

func (m *Metrics) ObserveWebhook(provider, disposition string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(provider, disposition).Inc()
}

// Handler serves the scrape endpoint for this process's registry.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// GinMiddleware records request counts and latency per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
