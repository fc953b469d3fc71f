package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns all Prometheus metrics for the gateway.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	throttledTotal  *prometheus.CounterVec
	deniedTotal     *prometheus.CounterVec
	fallbacksTotal  *prometheus.CounterVec
	activeStreams   *prometheus.GaugeVec
	rateBuckets     prometheus.GaugeFunc
}

// NewCollector creates a collector registered against its own registry.
// bucketCount reports the live rate-limiter bucket population; pass nil
// to skip that gauge.
func NewCollector(bucketCount func() float64) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oagw",
			Name:      "requests_total",
			Help:      "Proxied requests by upstream alias, branch and status code.",
		}, []string{"upstream", "branch", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oagw",
			Name:      "request_duration_seconds",
			Help:      "Time from pipeline entry to upstream response headers.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"upstream", "branch"}),
		throttledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oagw",
			Name:      "throttled_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"upstream"}),
		deniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oagw",
			Name:      "authz_denied_total",
			Help:      "Requests denied by the authorization gate.",
		}, []string{"upstream"}),
		fallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oagw",
			Name:      "endpoint_fallbacks_total",
			Help:      "Connect-phase failovers to a fallback endpoint.",
		}, []string{"upstream"}),
		activeStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "oagw",
			Name:      "active_streams",
			Help:      "Open SSE and WebSocket streams.",
		}, []string{"upstream", "branch"}),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.throttledTotal,
		c.deniedTotal,
		c.fallbacksTotal,
		c.activeStreams,
	)

	if bucketCount != nil {
		c.rateBuckets = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "oagw",
			Name:      "ratelimit_buckets",
			Help:      "Live rate-limiter buckets.",
		}, bucketCount)
		registry.MustRegister(c.rateBuckets)
	}

	return c
}

// ObserveRequest records one proxied request.
func (c *Collector) ObserveRequest(upstream, branch, status string, headerLatency time.Duration) {
	c.requestsTotal.WithLabelValues(upstream, branch, status).Inc()
	c.requestDuration.WithLabelValues(upstream, branch).Observe(headerLatency.Seconds())
}

// ObserveThrottled records a rate-limit rejection.
func (c *Collector) ObserveThrottled(upstream string) {
	c.throttledTotal.WithLabelValues(upstream).Inc()
}

// ObserveDenied records an authorization denial.
func (c *Collector) ObserveDenied(upstream string) {
	c.deniedTotal.WithLabelValues(upstream).Inc()
}

// ObserveFallback records a connect-phase failover to a fallback endpoint.
func (c *Collector) ObserveFallback(upstream string) {
	c.fallbacksTotal.WithLabelValues(upstream).Inc()
}

// StreamOpened marks an SSE or WebSocket stream as open. The returned
// function marks it closed and is safe to call once.
func (c *Collector) StreamOpened(upstream, branch string) func() {
	g := c.activeStreams.WithLabelValues(upstream, branch)
	g.Inc()
	return func() { g.Dec() }
}

// Handler returns the /metrics HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
