package registry

import (
	"net/http"
	"strings"
)

// RequestMeta is the slice of an inbound request that route matching
// needs: the method, the upstream-facing path (alias already stripped),
// and the headers.
type RequestMeta struct {
	Method string
	Path   string
	Header http.Header
}

// Matches tests one rule against the request.
func (r *MatchRule) Matches(req RequestMeta) bool {
	switch r.Kind {
	case MatchGRPC:
		// gRPC maps onto POST /{service}/{method} over HTTP/2.
		if !strings.EqualFold(req.Method, http.MethodPost) {
			return false
		}
		trimmed := strings.TrimPrefix(req.Path, "/")
		service, method, ok := strings.Cut(trimmed, "/")
		return ok && service == r.Service && method == r.Method

	default:
		if len(r.Methods) > 0 {
			found := false
			for _, m := range r.Methods {
				if strings.EqualFold(m, req.Method) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}

		pattern := r.pattern
		if pattern == nil {
			// Records loaded outside the write path compile lazily.
			compiled, err := compilePattern(r.PathPattern)
			if err != nil {
				return false
			}
			r.pattern = compiled
			pattern = compiled
		}
		if _, ok := pattern.match(req.Path); !ok {
			return false
		}

		for _, hp := range r.Headers {
			switch hp.Op {
			case HeaderPresent:
				if req.Header.Get(hp.Name) == "" {
					return false
				}
			case HeaderExact:
				if req.Header.Get(hp.Name) != hp.Value {
					return false
				}
			}
		}
		return true
	}
}

// SelectRoute walks routes in declared order and returns the first
// whose rule disjunction matches. Specificity is never computed; ties
// resolve by declaration order.
func SelectRoute(routes []*Route, req RequestMeta) *Route {
	for _, route := range routes {
		for i := range route.Match {
			if route.Match[i].Matches(req) {
				return route
			}
		}
	}
	return nil
}

// SynthesizePassthrough builds the implicit route used when no declared
// route matches: it preserves the rest path and inherits the upstream's
// authorization default.
func SynthesizePassthrough(u *Upstream) *Route {
	return &Route{
		ID:         u.ID + "/passthrough",
		UpstreamID: u.ID,
		Match: []MatchRule{{
			Kind:        MatchHTTP,
			PathPattern: "/{path*}",
		}},
		RequireAuthz: u.RequireAuthzDefault,
		Synthesized:  true,
	}
}
