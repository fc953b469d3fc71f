package registry

// Endpoint is one upstream origin. The first endpoint of an upstream is
// primary; the rest are positional connect-phase fallbacks.
type Endpoint struct {
	Scheme string `yaml:"scheme" json:"scheme"`
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
}

// PluginRef names an auth plugin and carries its config blob.
type PluginRef struct {
	Name   string         `yaml:"name" json:"name"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// RateBucket describes a token bucket. KeyTemplate expands per request;
// see the ratelimit package for the placeholder grammar.
type RateBucket struct {
	Capacity        int64   `yaml:"capacity" json:"capacity"`
	RefillPerSecond float64 `yaml:"refill_per_second" json:"refill_per_second"`
	KeyTemplate     string  `yaml:"key_template,omitempty" json:"key_template,omitempty"`
}

// Upstream is a configured external service.
type Upstream struct {
	// ID is the stable opaque identifier.
	ID string `yaml:"id" json:"id"`

	// Alias is the unique URL-path-safe public handle; the first path
	// segment of inbound URIs.
	Alias string `yaml:"alias" json:"alias"`

	// Server is the ordered non-empty endpoint list.
	Server []Endpoint `yaml:"server" json:"server"`

	// ProtocolTag names the wire shape and selects the forwarder
	// branch (e.g. "http/v1").
	ProtocolTag string `yaml:"protocol_tag" json:"protocol_tag"`

	// AuthPlugin is the upstream-level plugin, applied before any
	// route plugins. Optional.
	AuthPlugin *PluginRef `yaml:"auth_plugin,omitempty" json:"auth_plugin,omitempty"`

	// CredentialRefs lists the credential ids this upstream may read.
	CredentialRefs []string `yaml:"credential_refs,omitempty" json:"credential_refs,omitempty"`

	// DefaultRateLimit applies to routes without their own bucket.
	// Optional.
	DefaultRateLimit *RateBucket `yaml:"default_rate_limit,omitempty" json:"default_rate_limit,omitempty"`

	// RequireAuthzDefault is inherited by synthesized pass-through
	// routes when no declared route matches.
	RequireAuthzDefault bool `yaml:"require_authz_default,omitempty" json:"require_authz_default,omitempty"`
}

// MatchKind discriminates the MatchRule union.
type MatchKind string

const (
	// MatchHTTP matches on method set, path pattern and header
	// predicates.
	MatchHTTP MatchKind = "http"

	// MatchGRPC matches a gRPC service/method pair.
	MatchGRPC MatchKind = "grpc"
)

// HeaderOp is a header predicate operator.
type HeaderOp string

const (
	// HeaderExact requires the header to equal Value.
	HeaderExact HeaderOp = "exact"

	// HeaderPresent requires the header to exist with any value.
	HeaderPresent HeaderOp = "present"
)

// HeaderPredicate constrains one request header.
type HeaderPredicate struct {
	Name  string   `yaml:"name" json:"name"`
	Op    HeaderOp `yaml:"op" json:"op"`
	Value string   `yaml:"value,omitempty" json:"value,omitempty"`
}

// MatchRule is one disjunct of a route's match. Exactly one kind is
// populated, per Kind.
type MatchRule struct {
	Kind MatchKind `yaml:"kind" json:"kind"`

	// HTTP rule fields. An empty Methods set matches every method.
	Methods     []string          `yaml:"methods,omitempty" json:"methods,omitempty"`
	PathPattern string            `yaml:"path_pattern,omitempty" json:"path_pattern,omitempty"`
	Headers     []HeaderPredicate `yaml:"headers,omitempty" json:"headers,omitempty"`

	// gRPC rule fields.
	Service string `yaml:"service,omitempty" json:"service,omitempty"`
	Method  string `yaml:"method,omitempty" json:"method,omitempty"`

	// pattern is the compiled path pattern, populated on the write
	// path and when loading from storage.
	pattern *pathPattern
}

// Route binds match rules to an upstream.
type Route struct {
	// ID is the stable route identifier.
	ID string `yaml:"id" json:"id"`

	// UpstreamID is the owning upstream. Routes refer to upstreams by
	// id, never by pointer.
	UpstreamID string `yaml:"upstream_id" json:"upstream_id"`

	// Match is the non-empty rule disjunction.
	Match []MatchRule `yaml:"match" json:"match"`

	// Plugins run after the upstream plugin, in declared order.
	Plugins []PluginRef `yaml:"plugins,omitempty" json:"plugins,omitempty"`

	// RateLimit overrides the upstream default for this route.
	RateLimit *RateBucket `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`

	// RequireAuthz gates the route behind the authorization resolver.
	RequireAuthz bool `yaml:"require_authz,omitempty" json:"require_authz,omitempty"`

	// Synthesized marks the implicit pass-through route built when no
	// declared route matches. Never stored.
	Synthesized bool `yaml:"-" json:"-"`
}

// KnownProtocolTags is the accepted protocol tag set.
var KnownProtocolTags = map[string]struct{}{
	"http/v1": {},
	"sse/v1":  {},
	"ws/v1":   {},
	"grpc/v1": {},
}

// EffectiveRateLimit resolves the bucket for a route: the route's own
// bucket wins, then the upstream default, then none.
func EffectiveRateLimit(u *Upstream, r *Route) *RateBucket {
	if r != nil && r.RateLimit != nil {
		return r.RateLimit
	}
	if u != nil {
		return u.DefaultRateLimit
	}
	return nil
}
