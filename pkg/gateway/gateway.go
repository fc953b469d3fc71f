package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"meridian-hq/oagw/pkg/authplugin"
	"meridian-hq/oagw/pkg/authz"
	"meridian-hq/oagw/pkg/config"
	"meridian-hq/oagw/pkg/credentials"
	"meridian-hq/oagw/pkg/problem"
	"meridian-hq/oagw/pkg/proxy"
	"meridian-hq/oagw/pkg/proxy/middleware"
	"meridian-hq/oagw/pkg/proxy/wsproxy"
	"meridian-hq/oagw/pkg/ratelimit"
	"meridian-hq/oagw/pkg/registry"
	"meridian-hq/oagw/pkg/telemetry/metrics"
)

// Options carries the collaborators a Gateway is built from. Zero
// fields get working defaults.
type Options struct {
	// Backend persists registry records. Nil keeps them in memory.
	Backend registry.Backend

	// Resolver is the external authorization resolver. Nil allows all.
	Resolver authz.Resolver

	// Providers seed (and refresh) the credential store.
	Providers []credentials.Provider
}

// Gateway is the service facade over the proxy pipeline and its
// registries.
type Gateway struct {
	cfg       *config.Config
	registry  *registry.Registry
	store     *credentials.Store
	providers []credentials.Provider
	plugins   *authplugin.Registry
	limiter   *ratelimit.Engine
	metrics   *metrics.Collector
	forwarder *proxy.Forwarder
	pipeline  *proxy.Pipeline
	handler   http.Handler
	cron      *cron.Cron

	closed    atomic.Bool
	closeOnce sync.Once
}

// New assembles a gateway from configuration.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Gateway, error) {
	var reg *registry.Registry
	var err error
	if opts.Backend != nil {
		reg, err = registry.NewWithBackend(opts.Backend)
		if err != nil {
			return nil, err
		}
	} else {
		reg = registry.New()
	}

	store := credentials.NewStore()
	for _, provider := range opts.Providers {
		if err := provider.Load(ctx, store); err != nil {
			return nil, fmt.Errorf("credential provider %q: %w", provider.Name(), err)
		}
	}

	limiter := ratelimit.NewEngine()
	collector := metrics.NewCollector(func() float64 { return float64(limiter.Buckets()) })
	forwarder := proxy.NewForwarder(cfg.Gateway.ProxyTimeout, collector)

	pipeline := &proxy.Pipeline{
		Registry:    reg,
		Plugins:     authplugin.NewRegistry(),
		Credentials: store,
		Gate:        authz.NewGate(opts.Resolver),
		Limiter:     limiter,
		Forwarder:   forwarder,
		Bridge: &wsproxy.Bridge{
			IdleTimeout:      cfg.Gateway.IdleTimeout,
			HandshakeTimeout: cfg.Gateway.ProxyTimeout,
		},
		Metrics:      collector,
		ForwardXFF:   cfg.Gateway.ForwardXFF == nil || *cfg.Gateway.ForwardXFF,
		ProxyTimeout: cfg.Gateway.ProxyTimeout,
	}

	g := &Gateway{
		cfg:       cfg,
		registry:  reg,
		store:     store,
		providers: opts.Providers,
		plugins:   pipeline.Plugins,
		limiter:   limiter,
		metrics:   collector,
		forwarder: forwarder,
		pipeline:  pipeline,
		cron:      cron.New(),
	}
	g.handler = middleware.RequestID(middleware.Logging(middleware.Recovery(g.rejectWhenClosed(pipeline))))

	if schedule := cfg.Gateway.MaintenanceSchedule; schedule != "" {
		if _, err := g.cron.AddFunc(schedule, g.maintain); err != nil {
			return nil, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
		}
		g.cron.Start()
	}

	return g, nil
}

// maintain is the scheduled background sweep.
func (g *Gateway) maintain() {
	collected := g.limiter.Sweep()
	slog.Debug("maintenance sweep", "buckets_collected", collected)

	ctx := context.Background()
	for _, provider := range g.providers {
		refreshable, ok := provider.(credentials.RefreshableProvider)
		if !ok {
			continue
		}
		if err := refreshable.Refresh(ctx, g.store); err != nil {
			slog.Warn("credential provider refresh failed", "provider", provider.Name(), "error", err)
		}
	}
}

// rejectWhenClosed fences new requests after Close.
func (g *Gateway) rejectWhenClosed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.closed.Load() {
			problem.Write(w, problem.New(problem.TypeInternal, http.StatusServiceUnavailable, "Shutting Down"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the inbound HTTP surface: the full middleware chain
// around the proxy pipeline.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Metrics exposes the collector (for the admin endpoints).
func (g *Gateway) Metrics() *metrics.Collector { return g.metrics }

// Registry exposes the registry for provisioning.
func (g *Gateway) Registry() *registry.Registry { return g.registry }

// Credentials exposes the credential store for CRUD.
func (g *Gateway) Credentials() *credentials.Store { return g.store }

// ProxyRequest runs the pipeline for req and returns the raw upstream
// response. In-process consumers wrap event-stream responses with
// sse.NewStream for the typed view.
func (g *Gateway) ProxyRequest(req *http.Request) (*http.Response, error) {
	if g.closed.Load() {
		return nil, problem.New(problem.TypeInternal, http.StatusServiceUnavailable, "Shutting Down")
	}
	return g.pipeline.Do(req)
}

// CreateUpstream registers a new upstream.
func (g *Gateway) CreateUpstream(u registry.Upstream) (*registry.Upstream, error) {
	return g.registry.CreateUpstream(u)
}

// UpdateUpstream replaces an upstream record.
func (g *Gateway) UpdateUpstream(u registry.Upstream) (*registry.Upstream, error) {
	return g.registry.UpdateUpstream(u)
}

// DeleteUpstream removes an upstream and its routes. In-flight
// requests complete on their snapshots; new lookups fail.
func (g *Gateway) DeleteUpstream(id string) error {
	return g.registry.DeleteUpstream(id)
}

// GetUpstream fetches an upstream by id.
func (g *Gateway) GetUpstream(id string) (*registry.Upstream, error) {
	return g.registry.GetUpstream(id)
}

// GetUpstreamByAlias fetches an upstream by alias.
func (g *Gateway) GetUpstreamByAlias(alias string) (*registry.Upstream, error) {
	return g.registry.GetUpstreamByAlias(alias)
}

// ListUpstreams lists every upstream.
func (g *Gateway) ListUpstreams() []*registry.Upstream {
	return g.registry.ListUpstreams()
}

// CreateRoute registers a new route for an upstream.
func (g *Gateway) CreateRoute(r registry.Route) (*registry.Route, error) {
	return g.registry.CreateRoute(r)
}

// UpdateRoute replaces a route record.
func (g *Gateway) UpdateRoute(r registry.Route) (*registry.Route, error) {
	return g.registry.UpdateRoute(r)
}

// DeleteRoute removes a route.
func (g *Gateway) DeleteRoute(id string) error {
	return g.registry.DeleteRoute(id)
}

// GetRoute fetches a route by id.
func (g *Gateway) GetRoute(id string) (*registry.Route, error) {
	return g.registry.GetRoute(id)
}

// ListRoutes lists an upstream's routes in declared order.
func (g *Gateway) ListRoutes(upstreamID string) ([]*registry.Route, error) {
	return g.registry.ListRoutes(upstreamID)
}

// Close stops the maintenance sweep, rejects new requests and releases
// pooled connections. Idempotent.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		g.closed.Store(true)
		if g.cron != nil {
			<-g.cron.Stop().Done()
		}
		g.forwarder.CloseIdleConnections()
		for _, provider := range g.providers {
			if closer, ok := provider.(interface{ Close() error }); ok {
				_ = closer.Close()
			}
		}
		slog.Info("gateway closed")
	})
	return nil
}
