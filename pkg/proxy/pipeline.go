package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"meridian-hq/oagw/pkg/authplugin"
	"meridian-hq/oagw/pkg/authz"
	"meridian-hq/oagw/pkg/credentials"
	"meridian-hq/oagw/pkg/problem"
	"meridian-hq/oagw/pkg/proxy/wsproxy"
	"meridian-hq/oagw/pkg/ratelimit"
	"meridian-hq/oagw/pkg/registry"
	"meridian-hq/oagw/pkg/telemetry/logging"
	"meridian-hq/oagw/pkg/telemetry/metrics"
)

// CallerIDHeader carries the inbound caller identity. In-process
// callers are trusted to set it; it is stripped before forwarding.
const CallerIDHeader = "X-Caller-Id"

// Pipeline composes the registries, gate, limiter and forwarder into
// the per-request stage sequence.
type Pipeline struct {
	Registry    *registry.Registry
	Plugins     *authplugin.Registry
	Credentials credentials.Reader
	Gate        *authz.Gate
	Limiter     *ratelimit.Engine
	Forwarder   *Forwarder
	Bridge      *wsproxy.Bridge
	Metrics     *metrics.Collector

	// ForwardXFF adds X-Forwarded-For / X-Forwarded-Host headers.
	ForwardXFF bool

	// ProxyTimeout bounds pipeline entry to upstream response headers.
	ProxyTimeout time.Duration
}

// resolved is the outcome of stages 1-7: everything needed to dispatch.
type resolved struct {
	snapshot registry.Snapshot
	route    *registry.Route
	head     *outboundHead
}

// ServeHTTP runs the full pipeline for one inbound request.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	res, prob := p.prepare(r)
	if prob != nil {
		p.observeProblem(r.Context(), res, prob)
		problem.Write(w, prob)
		return
	}

	alias := res.snapshot.Upstream.Alias
	ctx := logging.WithUpstream(r.Context(), alias)

	// WebSocket upgrades branch before the unary dispatch.
	if wsproxy.IsUpgrade(r) {
		p.serveWebSocket(ctx, w, r, res, start)
		return
	}

	resp, err := p.Forwarder.Do(ctx, res.snapshot.Upstream, res.head, r.Body)
	if err != nil {
		prob := problem.From(err)
		p.Metrics.ObserveRequest(alias, "unary", statusLabel(prob.Status), time.Since(start))
		problem.Write(w, prob)
		return
	}

	branch := "unary"
	if IsEventStream(resp) {
		branch = "sse"
		closeStream := p.Metrics.StreamOpened(alias, branch)
		defer closeStream()
	}
	p.Metrics.ObserveRequest(alias, branch, statusLabel(resp.StatusCode), time.Since(start))

	if err := CopyResponse(w, resp); err != nil {
		// Headers are gone; all that is left is to log.
		slog.Debug("response copy aborted",
			"upstream", alias,
			"request_id", logging.GetRequestID(ctx),
			"error", err,
		)
	}
}

// Do runs stages 1-7 and the unary dispatch, returning the raw
// upstream response. In-process consumers build typed views from it
// (sse.NewStream over the body for event streams). WebSocket traffic
// goes through ServeHTTP.
func (p *Pipeline) Do(r *http.Request) (*http.Response, error) {
	res, prob := p.prepare(r)
	if prob != nil {
		p.observeProblem(r.Context(), res, prob)
		return nil, prob
	}

	resp, err := p.Forwarder.Do(r.Context(), res.snapshot.Upstream, res.head, r.Body)
	if err != nil {
		return nil, problem.From(err)
	}
	return resp, nil
}

// prepare executes stages 1-7. On failure the returned resolved may
// still carry the snapshot for labeling.
func (p *Pipeline) prepare(r *http.Request) (*resolved, *problem.Problem) {
	// Stage 1: alias extraction.
	alias, rest := SplitAlias(r.URL.Path)
	if alias == "" {
		return nil, problem.NotFound("request path carries no upstream alias").WithMeta("alias", "")
	}

	// Stage 2: upstream lookup.
	snapshot, err := p.Registry.Resolve(alias)
	if err != nil {
		return nil, problem.NotFound("no upstream for alias").WithMeta("alias", alias)
	}
	res := &resolved{snapshot: snapshot}

	// Stage 3: route selection, first declared match wins.
	meta := registry.RequestMeta{Method: r.Method, Path: rest, Header: r.Header}
	route := registry.SelectRoute(snapshot.Routes, meta)
	if route == nil {
		route = registry.SynthesizePassthrough(snapshot.Upstream)
	}
	res.route = route

	callerID := r.Header.Get(CallerIDHeader)

	// Stages 4 and 5 may suspend (resolver call, rate-limit wait);
	// both are bounded by the proxy timeout.
	stageCtx := r.Context()
	if p.ProxyTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(stageCtx, p.ProxyTimeout)
		defer cancel()
	}

	// Stage 4: authorization, exactly once, before any plugin runs.
	if route.RequireAuthz {
		err := p.Gate.Check(stageCtx, authz.Request{
			CallerID:   callerID,
			UpstreamID: snapshot.Upstream.ID,
			RouteID:    route.ID,
			Action:     "proxy",
		})
		var denied *authz.DeniedError
		switch {
		case errors.As(err, &denied):
			return res, problem.Forbidden(denied.Reason)
		case err != nil:
			slog.Error("authorization resolver failed",
				"upstream", alias,
				"route_id", route.ID,
				"error", err,
			)
			return res, problem.Internal("authorization resolver unavailable")
		}
	}

	// Stage 5: rate limiting with the route's effective bucket.
	if bucket := registry.EffectiveRateLimit(snapshot.Upstream, route); bucket != nil {
		key, err := ratelimit.ExpandKey(bucket.KeyTemplate, ratelimit.KeyVars{
			CallerID:   callerID,
			RouteID:    route.ID,
			UpstreamID: snapshot.Upstream.ID,
			Header:     r.Header.Get,
		})
		if err != nil {
			slog.Error("rate limit key expansion failed", "route_id", route.ID, "error", err)
			return res, problem.Internal("invalid rate limit key template")
		}

		spec := ratelimit.Spec{Capacity: bucket.Capacity, RefillPerSecond: bucket.RefillPerSecond}
		if err := p.Limiter.Acquire(stageCtx, key, spec, 1); err != nil {
			var throttled *ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				return res, problem.Throttled(throttled.RetryAfter)
			}
			return res, problem.Internal("rate limiter failure")
		}
	}

	// Stage 6: outbound head construction.
	header := filterHeaders(r.Header)
	header.Del(CallerIDHeader)
	if p.ForwardXFF {
		addForwardedHeaders(header, r.RemoteAddr, r.Host)
	}

	primary := snapshot.Upstream.Server[0]
	head := &authplugin.RequestHead{
		Method: r.Method,
		URL:    endpointURL(primary, rest, r.URL.RawQuery),
		Header: header,
	}

	// Stage 7: plugin chain, upstream plugin first.
	plugins, err := p.buildPlugins(snapshot.Upstream, route)
	if err != nil {
		slog.Error("auth plugin construction failed",
			"upstream", alias,
			"route_id", route.ID,
			"error", err,
		)
		return res, problem.Internal("auth plugin construction failed")
	}
	if err := authplugin.Chain(r.Context(), head, plugins); err != nil {
		slog.Error("auth plugin failed",
			"upstream", alias,
			"route_id", route.ID,
			"error", err,
		)
		return res, problem.Internal("auth plugin failed")
	}

	res.head = &outboundHead{
		method:        head.Method,
		path:          head.URL.Path,
		rawQuery:      head.URL.RawQuery,
		header:        head.Header,
		contentLength: r.ContentLength,
	}
	return res, nil
}

// buildPlugins constructs the composed chain: the upstream's plugin,
// then each route plugin in declared order.
func (p *Pipeline) buildPlugins(u *registry.Upstream, route *registry.Route) ([]authplugin.Plugin, error) {
	refs := make([]registry.PluginRef, 0, 1+len(route.Plugins))
	if u.AuthPlugin != nil {
		refs = append(refs, *u.AuthPlugin)
	}
	refs = append(refs, route.Plugins...)

	plugins := make([]authplugin.Plugin, 0, len(refs))
	for _, ref := range refs {
		plugin, err := p.Plugins.New(ref.Name, ref.Config, p.Credentials)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, plugin)
	}
	return plugins, nil
}

// serveWebSocket dispatches an upgrade through the bridge.
func (p *Pipeline) serveWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request, res *resolved, start time.Time) {
	u := res.snapshot.Upstream

	target := endpointURL(u.Server[0], res.head.path, res.head.rawQuery)
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}

	closeStream := p.Metrics.StreamOpened(u.Alias, "websocket")
	defer closeStream()

	err := p.Bridge.Proxy(ctx, w, r, target.String(), res.head.header)
	var dialErr *wsproxy.DialError
	if errors.As(err, &dialErr) {
		// The inbound connection is untouched on dial failure, so a
		// plain HTTP error still goes out.
		prob := problem.UpstreamUnreachable(dialErr.Error())
		p.Metrics.ObserveRequest(u.Alias, "websocket", statusLabel(prob.Status), time.Since(start))
		problem.Write(w, prob)
		return
	}

	p.Metrics.ObserveRequest(u.Alias, "websocket", "101", time.Since(start))
	if err != nil {
		slog.Debug("websocket bridge closed with error",
			"upstream", u.Alias,
			"request_id", logging.GetRequestID(ctx),
			"error", err,
		)
	}
}

// observeProblem records pipeline-stage failures in the metrics that
// apply to them.
func (p *Pipeline) observeProblem(ctx context.Context, res *resolved, prob *problem.Problem) {
	alias := ""
	if res != nil && res.snapshot.Upstream != nil {
		alias = res.snapshot.Upstream.Alias
	}
	switch prob.Type {
	case problem.TypeThrottled:
		p.Metrics.ObserveThrottled(alias)
	case problem.TypeForbidden:
		p.Metrics.ObserveDenied(alias)
	}

	slog.Info("request rejected",
		"request_id", logging.GetRequestID(ctx),
		"upstream", alias,
		"problem", prob.Type,
		"status", prob.Status,
	)
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
