package proxy

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"meridian-hq/oagw/pkg/authplugin"
	"meridian-hq/oagw/pkg/authz"
	"meridian-hq/oagw/pkg/credentials"
	"meridian-hq/oagw/pkg/problem"
	"meridian-hq/oagw/pkg/proxy/sse"
	"meridian-hq/oagw/pkg/proxy/wsproxy"
	"meridian-hq/oagw/pkg/ratelimit"
	"meridian-hq/oagw/pkg/registry"
	"meridian-hq/oagw/pkg/telemetry/metrics"
)

// endpointOf converts an httptest server URL into a registry endpoint.
func endpointOf(t *testing.T, rawURL string) registry.Endpoint {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return registry.Endpoint{Scheme: u.Scheme, Host: u.Hostname(), Port: port}
}

type pipelineFixture struct {
	pipeline *Pipeline
	registry *registry.Registry
	store    *credentials.Store
	resolver authz.Resolver
}

func newFixture(t *testing.T, resolver authz.Resolver) *pipelineFixture {
	t.Helper()
	reg := registry.New()
	store := credentials.NewStore()
	collector := metrics.NewCollector(nil)
	timeout := 3 * time.Second

	p := &Pipeline{
		Registry:     reg,
		Plugins:      authplugin.NewRegistry(),
		Credentials:  store,
		Gate:         authz.NewGate(resolver),
		Limiter:      ratelimit.NewEngine(),
		Forwarder:    NewForwarder(timeout, collector),
		Bridge:       &wsproxy.Bridge{HandshakeTimeout: timeout},
		Metrics:      collector,
		ForwardXFF:   true,
		ProxyTimeout: timeout,
	}
	return &pipelineFixture{pipeline: p, registry: reg, store: store, resolver: resolver}
}

func (f *pipelineFixture) addUpstream(t *testing.T, u registry.Upstream) *registry.Upstream {
	t.Helper()
	created, err := f.registry.CreateUpstream(u)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) *problem.Problem {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != problem.ContentType {
		t.Fatalf("Content-Type = %q, want problem envelope", ct)
	}
	var p problem.Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("invalid problem body %q: %v", rec.Body.String(), err)
	}
	return &p
}

// Scenario: unary happy path with api-key credential injection.
func TestUnaryHappyPath(t *testing.T) {
	var gotPath, gotAuth, gotBody, gotXFF string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotXFF = r.Header.Get("X-Forwarded-For")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"id":"chatcmpl-1"}`)
	}))
	defer upstream.Close()

	f := newFixture(t, nil)
	if err := f.store.Put(credentials.Credential{ID: "k1", Secret: []byte("sk-AAA"), Kind: "api_key"}); err != nil {
		t.Fatal(err)
	}
	f.addUpstream(t, registry.Upstream{
		Alias:          "openai",
		Server:         []registry.Endpoint{endpointOf(t, upstream.URL)},
		ProtocolTag:    "http/v1",
		AuthPlugin:     &registry.PluginRef{Name: "api-key", Config: map[string]any{"credential_id": "k1"}},
		CredentialRefs: []string{"k1"},
	})

	req := httptest.NewRequest("POST", "/openai/v1/chat/completions", strings.NewReader(`{"model":"gpt-4"}`))
	req.RemoteAddr = "10.0.0.7:43210"
	rec := httptest.NewRecorder()
	f.pipeline.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("upstream path = %q, want alias stripped", gotPath)
	}
	if gotAuth != "Bearer sk-AAA" {
		t.Errorf("Authorization = %q, want Bearer sk-AAA", gotAuth)
	}
	if gotBody != `{"model":"gpt-4"}` {
		t.Errorf("body = %q, want forwarded unchanged", gotBody)
	}
	if gotXFF != "10.0.0.7" {
		t.Errorf("X-Forwarded-For = %q", gotXFF)
	}
	if rec.Body.String() != `{"id":"chatcmpl-1"}` {
		t.Errorf("response body = %q, want verbatim", rec.Body.String())
	}
}

// Scenario: fixed-pool throttling yields exactly one success and a
// structured 429.
func TestThrottling(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	f := newFixture(t, nil)
	u := f.addUpstream(t, registry.Upstream{
		Alias:       "openai",
		Server:      []registry.Endpoint{endpointOf(t, upstream.URL)},
		ProtocolTag: "http/v1",
	})
	if _, err := f.registry.CreateRoute(registry.Route{
		UpstreamID: u.ID,
		Match:      []registry.MatchRule{{Kind: registry.MatchHTTP, PathPattern: "/v1/models", Methods: []string{"GET"}}},
		RateLimit:  &registry.RateBucket{Capacity: 1, RefillPerSecond: 0},
	}); err != nil {
		t.Fatal(err)
	}

	first := httptest.NewRecorder()
	f.pipeline.ServeHTTP(first, httptest.NewRequest("GET", "/openai/v1/models", nil))
	second := httptest.NewRecorder()
	f.pipeline.ServeHTTP(second, httptest.NewRequest("GET", "/openai/v1/models", nil))

	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}

	p := decodeProblem(t, second)
	if p.Type != problem.TypeThrottled {
		t.Errorf("type = %q, want gateway.throttled.v1", p.Type)
	}
	ms, ok := p.Metadata["retry_after_ms"].(float64)
	if !ok || ms <= 0 {
		t.Errorf("retry_after_ms = %v, want > 0", p.Metadata["retry_after_ms"])
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

type denyResolver struct{ reason string }

func (d denyResolver) Authorize(context.Context, authz.Request) (authz.Decision, error) {
	return authz.Decision{Allowed: false, Reason: d.reason}, nil
}

// Scenario: authorization denial never reaches the upstream.
func TestAuthzDenial(t *testing.T) {
	upstreamHits := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits++
	}))
	defer upstream.Close()

	f := newFixture(t, denyResolver{reason: "no scope"})
	u := f.addUpstream(t, registry.Upstream{
		Alias:       "openai",
		Server:      []registry.Endpoint{endpointOf(t, upstream.URL)},
		ProtocolTag: "http/v1",
	})
	if _, err := f.registry.CreateRoute(registry.Route{
		UpstreamID:   u.ID,
		Match:        []registry.MatchRule{{Kind: registry.MatchHTTP, PathPattern: "/{rest*}"}},
		RequireAuthz: true,
	}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	f.pipeline.ServeHTTP(rec, httptest.NewRequest("GET", "/openai/v1/models", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	p := decodeProblem(t, rec)
	if p.Type != problem.TypeForbidden {
		t.Errorf("type = %q, want forbidden.v1", p.Type)
	}
	if !strings.Contains(p.Detail, "no scope") {
		t.Errorf("detail = %q, want the resolver reason", p.Detail)
	}
	if upstreamHits != 0 {
		t.Errorf("upstream was contacted %d times despite the denial", upstreamHits)
	}
}

// Scenario: SSE events stream through and parse into typed events.
func TestSSEStreaming(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "event: ping\ndata: 1\n\ndata: two\ndata: lines\n\n")
	}))
	defer upstream.Close()

	f := newFixture(t, nil)
	f.addUpstream(t, registry.Upstream{
		Alias:       "events",
		Server:      []registry.Endpoint{endpointOf(t, upstream.URL)},
		ProtocolTag: "sse/v1",
	})

	// Through the HTTP surface the bytes pass verbatim.
	rec := httptest.NewRecorder()
	f.pipeline.ServeHTTP(rec, httptest.NewRequest("GET", "/events/stream", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "event: ping") {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}

	// Through Do the response wraps into a typed stream.
	resp, err := f.pipeline.Do(httptest.NewRequest("GET", "/events/stream", nil))
	if err != nil {
		t.Fatal(err)
	}
	if !IsEventStream(resp) {
		t.Fatal("response not detected as an event stream")
	}
	stream := sse.NewStream(resp.Body)
	defer stream.Close()

	ev1, err := stream.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ev1.Event != "ping" || ev1.Data != "1" {
		t.Errorf("event 1 = %+v", ev1)
	}
	ev2, err := stream.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ev2.Data != "two\nlines" {
		t.Errorf("event 2 = %+v", ev2)
	}
	if _, err := stream.Next(context.Background()); err != io.EOF {
		t.Errorf("want stream end, got %v", err)
	}
}

// Scenario: connect failure on the primary endpoint falls back to the
// next one; the result is indistinguishable from a direct success.
func TestEndpointFallback(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer upstream.Close()

	// A listener that is closed immediately gives a refused port.
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadPort := dead.Addr().(*net.TCPAddr).Port
	dead.Close()

	f := newFixture(t, nil)
	f.addUpstream(t, registry.Upstream{
		Alias: "ha",
		Server: []registry.Endpoint{
			{Scheme: "http", Host: "127.0.0.1", Port: deadPort},
			endpointOf(t, upstream.URL),
		},
		ProtocolTag: "http/v1",
	})

	rec := httptest.NewRecorder()
	f.pipeline.ServeHTTP(rec, httptest.NewRequest("GET", "/ha/anything", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("fallback result: status=%d body=%q", rec.Code, rec.Body.String())
	}
}

// Scenario: unknown alias is a structured 404 and runs no plugin.
func TestAliasNotFound(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	f.pipeline.ServeHTTP(rec, httptest.NewRequest("GET", "/unknown/x", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	p := decodeProblem(t, rec)
	if p.Type != problem.TypeNotFound {
		t.Errorf("type = %q, want not_found.v1", p.Type)
	}
	if p.Metadata["alias"] != "unknown" {
		t.Errorf("alias metadata = %v, want unknown", p.Metadata["alias"])
	}
}

func TestAllEndpointsUnreachable(t *testing.T) {
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadPort := dead.Addr().(*net.TCPAddr).Port
	dead.Close()

	f := newFixture(t, nil)
	f.addUpstream(t, registry.Upstream{
		Alias: "down",
		Server: []registry.Endpoint{
			{Scheme: "http", Host: "127.0.0.1", Port: deadPort},
			{Scheme: "http", Host: "127.0.0.1", Port: deadPort},
		},
		ProtocolTag: "http/v1",
	})

	rec := httptest.NewRecorder()
	f.pipeline.ServeHTTP(rec, httptest.NewRequest("GET", "/down/x", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if p := decodeProblem(t, rec); p.Type != problem.TypeUpstreamUnreachable {
		t.Errorf("type = %q, want gateway.upstream_unreachable.v1", p.Type)
	}
}

func TestRoutePluginsRunAfterUpstreamPlugin(t *testing.T) {
	var gotAuth, gotExtra string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotExtra = r.Header.Get("X-Extra-Key")
	}))
	defer upstream.Close()

	f := newFixture(t, nil)
	for id, secret := range map[string]string{"k1": "upstream-secret", "k2": "route-secret"} {
		if err := f.store.Put(credentials.Credential{ID: id, Secret: []byte(secret)}); err != nil {
			t.Fatal(err)
		}
	}
	u := f.addUpstream(t, registry.Upstream{
		Alias:       "layered",
		Server:      []registry.Endpoint{endpointOf(t, upstream.URL)},
		ProtocolTag: "http/v1",
		AuthPlugin:  &registry.PluginRef{Name: "api-key", Config: map[string]any{"credential_id": "k1"}},
	})
	if _, err := f.registry.CreateRoute(registry.Route{
		UpstreamID: u.ID,
		Match:      []registry.MatchRule{{Kind: registry.MatchHTTP, PathPattern: "/{rest*}"}},
		Plugins: []registry.PluginRef{
			{Name: "api-key", Config: map[string]any{"credential_id": "k2", "header": "X-Extra-Key", "scheme": "Raw"}},
		},
	}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	f.pipeline.ServeHTTP(rec, httptest.NewRequest("GET", "/layered/x", nil))

	if gotAuth != "Bearer upstream-secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotExtra != "route-secret" {
		t.Errorf("X-Extra-Key = %q", gotExtra)
	}
}

func TestMissingCredentialIsInternal(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	f := newFixture(t, nil)
	f.addUpstream(t, registry.Upstream{
		Alias:       "broken",
		Server:      []registry.Endpoint{endpointOf(t, upstream.URL)},
		ProtocolTag: "http/v1",
		AuthPlugin:  &registry.PluginRef{Name: "api-key", Config: map[string]any{"credential_id": "ghost"}},
	})

	rec := httptest.NewRecorder()
	f.pipeline.ServeHTTP(rec, httptest.NewRequest("GET", "/broken/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if p := decodeProblem(t, rec); p.Type != problem.TypeInternal {
		t.Errorf("type = %q, want internal.v1", p.Type)
	}
}

func TestCallerHeaderStripped(t *testing.T) {
	var gotCaller string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = r.Header.Get(CallerIDHeader)
	}))
	defer upstream.Close()

	f := newFixture(t, nil)
	f.addUpstream(t, registry.Upstream{
		Alias:       "svc",
		Server:      []registry.Endpoint{endpointOf(t, upstream.URL)},
		ProtocolTag: "http/v1",
	})

	req := httptest.NewRequest("GET", "/svc/x", nil)
	req.Header.Set(CallerIDHeader, "internal-service")
	f.pipeline.ServeHTTP(httptest.NewRecorder(), req)

	if gotCaller != "" {
		t.Errorf("caller identity leaked upstream: %q", gotCaller)
	}
}

func TestHeaderPhaseCancellation(t *testing.T) {
	// An upstream that never answers: cancelling the inbound request
	// must abort the outbound attempt promptly.
	hang := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-hang
	}))
	defer upstream.Close()
	defer close(hang)

	f := newFixture(t, nil)
	f.addUpstream(t, registry.Upstream{
		Alias:       "slow",
		Server:      []registry.Endpoint{endpointOf(t, upstream.URL)},
		ProtocolTag: "http/v1",
	})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/slow/x", nil).WithContext(ctx)

	done := make(chan error, 1)
	go func() {
		_, err := f.pipeline.Do(req)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected an error after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("outbound attempt did not abort on inbound cancellation")
	}
}

func TestFirstMatchingRouteWins(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer upstream.Close()

	f := newFixture(t, denyResolver{reason: "should never run"})
	u := f.addUpstream(t, registry.Upstream{
		Alias:       "ordered",
		Server:      []registry.Endpoint{endpointOf(t, upstream.URL)},
		ProtocolTag: "http/v1",
	})

	// The broad route is declared first and wins even though the later
	// one is more specific (and would deny).
	if _, err := f.registry.CreateRoute(registry.Route{
		UpstreamID: u.ID,
		Match:      []registry.MatchRule{{Kind: registry.MatchHTTP, PathPattern: "/v1/{rest*}"}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.registry.CreateRoute(registry.Route{
		UpstreamID:   u.ID,
		Match:        []registry.MatchRule{{Kind: registry.MatchHTTP, PathPattern: "/v1/models"}},
		RequireAuthz: true,
	}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	f.pipeline.ServeHTTP(rec, httptest.NewRequest("GET", "/ordered/v1/models", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; first-declared route must win", rec.Code)
	}
	if gotPath != "/v1/models" {
		t.Errorf("upstream path = %q", gotPath)
	}
}

func TestQueryMerging(t *testing.T) {
	var gotQuery url.Values
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
	}))
	defer upstream.Close()

	f := newFixture(t, nil)
	if err := f.store.Put(credentials.Credential{ID: "k", Secret: []byte("qk")}); err != nil {
		t.Fatal(err)
	}
	f.addUpstream(t, registry.Upstream{
		Alias:       "q",
		Server:      []registry.Endpoint{endpointOf(t, upstream.URL)},
		ProtocolTag: "http/v1",
		AuthPlugin:  &registry.PluginRef{Name: "api-key", Config: map[string]any{"credential_id": "k", "scheme": "Raw", "query_param": "key"}},
	})

	rec := httptest.NewRecorder()
	f.pipeline.ServeHTTP(rec, httptest.NewRequest("GET", "/q/v1/items?limit=5", nil))

	if gotQuery.Get("limit") != "5" {
		t.Errorf("inbound query lost: %v", gotQuery)
	}
	if gotQuery.Get("key") != "qk" {
		t.Errorf("plugin query parameter missing: %v", gotQuery)
	}
}
