package registry

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// aliasPattern is the accepted alias grammar: URL-path-safe, at most 63
// characters, starting with an alphanumeric.
var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,62}$`)

// validateUpstream checks every upstream invariant. Patterns in the
// record are not touched; routes are validated separately.
func validateUpstream(u *Upstream) error {
	if u.ID == "" {
		return &ValidationError{Field: "id", Message: "must not be empty"}
	}
	if !aliasPattern.MatchString(u.Alias) {
		return &ValidationError{Field: "alias", Message: fmt.Sprintf("%q does not match %s", u.Alias, aliasPattern)}
	}
	if len(u.Server) == 0 {
		return &ValidationError{Field: "server", Message: "at least one endpoint is required"}
	}
	for i, ep := range u.Server {
		field := fmt.Sprintf("server[%d]", i)
		if ep.Scheme != "http" && ep.Scheme != "https" {
			return &ValidationError{Field: field + ".scheme", Message: fmt.Sprintf("%q must be http or https", ep.Scheme)}
		}
		if ep.Host == "" {
			return &ValidationError{Field: field + ".host", Message: "must not be empty"}
		}
		if ep.Port < 1 || ep.Port > 65535 {
			return &ValidationError{Field: field + ".port", Message: fmt.Sprintf("%d out of range 1-65535", ep.Port)}
		}
	}
	if _, ok := KnownProtocolTags[u.ProtocolTag]; !ok {
		return &ValidationError{Field: "protocol_tag", Message: fmt.Sprintf("unknown tag %q", u.ProtocolTag)}
	}
	if u.AuthPlugin != nil && u.AuthPlugin.Name == "" {
		return &ValidationError{Field: "auth_plugin.name", Message: "must not be empty"}
	}
	if u.DefaultRateLimit != nil {
		if err := validateRateBucket(u.DefaultRateLimit); err != nil {
			return &ValidationError{Field: "default_rate_limit", Message: err.Error()}
		}
	}
	return nil
}

// validateRoute checks route invariants and compiles its path patterns
// in place. Duplicate-rule detection against sibling routes happens in
// the registry, which owns the per-upstream view.
func validateRoute(r *Route) error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "must not be empty"}
	}
	if r.UpstreamID == "" {
		return &ValidationError{Field: "upstream_id", Message: "must not be empty"}
	}
	if len(r.Match) == 0 {
		return &ValidationError{Field: "match", Message: "at least one rule is required"}
	}

	for i := range r.Match {
		rule := &r.Match[i]
		field := fmt.Sprintf("match[%d]", i)
		switch rule.Kind {
		case MatchHTTP:
			if rule.PathPattern == "" {
				return &ValidationError{Field: field + ".path_pattern", Message: "must not be empty"}
			}
			pattern, err := compilePattern(rule.PathPattern)
			if err != nil {
				return &ValidationError{Field: field + ".path_pattern", Message: err.Error()}
			}
			rule.pattern = pattern
			for j, hp := range rule.Headers {
				hfield := fmt.Sprintf("%s.headers[%d]", field, j)
				if hp.Name == "" {
					return &ValidationError{Field: hfield + ".name", Message: "must not be empty"}
				}
				switch hp.Op {
				case HeaderExact, HeaderPresent:
				default:
					return &ValidationError{Field: hfield + ".op", Message: fmt.Sprintf("unknown op %q", hp.Op)}
				}
			}
		case MatchGRPC:
			if rule.Service == "" {
				return &ValidationError{Field: field + ".service", Message: "must not be empty"}
			}
			if rule.Method == "" {
				return &ValidationError{Field: field + ".method", Message: "must not be empty"}
			}
		default:
			return &ValidationError{Field: field + ".kind", Message: fmt.Sprintf("unknown kind %q", rule.Kind)}
		}
	}

	if r.RateLimit != nil {
		if err := validateRateBucket(r.RateLimit); err != nil {
			return &ValidationError{Field: "rate_limit", Message: err.Error()}
		}
	}
	for i, p := range r.Plugins {
		if p.Name == "" {
			return &ValidationError{Field: fmt.Sprintf("plugins[%d].name", i), Message: "must not be empty"}
		}
	}
	return nil
}

func validateRateBucket(b *RateBucket) error {
	if b.Capacity < 1 {
		return fmt.Errorf("capacity %d must be at least 1", b.Capacity)
	}
	if b.RefillPerSecond < 0 {
		return fmt.Errorf("refill_per_second must not be negative")
	}
	return nil
}

// ruleFingerprint canonicalizes a rule for duplicate detection across
// one upstream's routes.
func ruleFingerprint(rule *MatchRule) string {
	switch rule.Kind {
	case MatchGRPC:
		return "grpc|" + rule.Service + "|" + rule.Method
	default:
		methods := make([]string, len(rule.Methods))
		for i, m := range rule.Methods {
			methods[i] = strings.ToUpper(m)
		}
		sort.Strings(methods)

		headers := make([]string, len(rule.Headers))
		for i, hp := range rule.Headers {
			headers[i] = hp.Name + ":" + string(hp.Op) + ":" + hp.Value
		}
		sort.Strings(headers)

		pattern := rule.PathPattern
		if rule.pattern != nil {
			pattern = rule.pattern.String()
		}
		return "http|" + strings.Join(methods, ",") + "|" + pattern + "|" + strings.Join(headers, ",")
	}
}
