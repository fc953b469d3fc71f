package ratelimit

import (
	"fmt"
	"strings"
)

// KeyVars carries the per-request values a key template may reference.
type KeyVars struct {
	CallerID   string
	RouteID    string
	UpstreamID string

	// Header resolves {header:<name>} placeholders. Nil disables them.
	Header func(name string) string
}

// ExpandKey substitutes template placeholders with request values.
//
// Supported placeholders: {caller_id}, {route_id}, {upstream_id} and
// {header:<name>}. An empty template falls back to the route-scoped key
// "{upstream_id}/{route_id}" so distinct routes never share a bucket by
// accident. Unknown placeholders fail.
func ExpandKey(template string, vars KeyVars) (string, error) {
	if template == "" {
		return vars.UpstreamID + "/" + vars.RouteID, nil
	}

	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:open])

		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return "", fmt.Errorf("key template %q: unterminated placeholder", template)
		}
		name := rest[open+1 : open+closing]
		rest = rest[open+closing+1:]

		switch {
		case name == "caller_id":
			b.WriteString(vars.CallerID)
		case name == "route_id":
			b.WriteString(vars.RouteID)
		case name == "upstream_id":
			b.WriteString(vars.UpstreamID)
		case strings.HasPrefix(name, "header:"):
			if vars.Header == nil {
				return "", fmt.Errorf("key template %q: header placeholders not available", template)
			}
			b.WriteString(vars.Header(strings.TrimPrefix(name, "header:")))
		default:
			return "", fmt.Errorf("key template %q: unknown placeholder %q", template, name)
		}
	}
}
