package registry

import (
	"fmt"
	"strings"
)

// pathPattern is a compiled path pattern: literal segments bind exactly,
// {name} binds one segment, {name*} binds the remaining path (possibly
// empty) and must be last.
type pathPattern struct {
	segments []patternSegment
	catchAll string // parameter name of the trailing {name*}, or ""
}

type patternSegment struct {
	literal string
	param   string // set when the segment is {name}
}

// compilePattern parses and validates a path pattern.
func compilePattern(raw string) (*pathPattern, error) {
	if raw == "" || raw[0] != '/' {
		return nil, fmt.Errorf("pattern must start with '/'")
	}

	p := &pathPattern{}
	trimmed := strings.TrimPrefix(raw, "/")
	if trimmed == "" {
		return p, nil
	}

	parts := strings.Split(trimmed, "/")
	seen := make(map[string]struct{})
	for i, part := range parts {
		if strings.HasPrefix(part, "{") {
			if !strings.HasSuffix(part, "}") {
				return nil, fmt.Errorf("segment %q: unterminated parameter", part)
			}
			name := part[1 : len(part)-1]
			catchAll := strings.HasSuffix(name, "*")
			if catchAll {
				name = strings.TrimSuffix(name, "*")
			}
			if name == "" {
				return nil, fmt.Errorf("segment %q: parameter name must not be empty", part)
			}
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("segment %q: duplicate parameter %q", part, name)
			}
			seen[name] = struct{}{}

			if catchAll {
				if i != len(parts)-1 {
					return nil, fmt.Errorf("segment %q: catch-all must be the last segment", part)
				}
				p.catchAll = name
				return p, nil
			}
			p.segments = append(p.segments, patternSegment{param: name})
			continue
		}
		if strings.ContainsAny(part, "{}") {
			return nil, fmt.Errorf("segment %q: braces are only allowed in parameters", part)
		}
		p.segments = append(p.segments, patternSegment{literal: part})
	}
	return p, nil
}

// match tests path against the pattern and returns bound parameters.
// path is the upstream-facing path with the alias already stripped.
func (p *pathPattern) match(path string) (map[string]string, bool) {
	trimmed := strings.TrimPrefix(path, "/")

	var parts []string
	if trimmed != "" {
		parts = strings.Split(trimmed, "/")
	}

	if len(parts) < len(p.segments) {
		return nil, false
	}
	if p.catchAll == "" && len(parts) != len(p.segments) {
		return nil, false
	}

	params := make(map[string]string)
	for i, seg := range p.segments {
		switch {
		case seg.param != "":
			if parts[i] == "" {
				return nil, false
			}
			params[seg.param] = parts[i]
		case parts[i] != seg.literal:
			return nil, false
		}
	}

	if p.catchAll != "" {
		params[p.catchAll] = strings.Join(parts[len(p.segments):], "/")
	}
	return params, true
}

// String reassembles the canonical pattern text.
func (p *pathPattern) String() string {
	var b strings.Builder
	for _, seg := range p.segments {
		b.WriteByte('/')
		if seg.param != "" {
			b.WriteString("{" + seg.param + "}")
		} else {
			b.WriteString(seg.literal)
		}
	}
	if p.catchAll != "" {
		b.WriteString("/{" + p.catchAll + "*}")
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}
