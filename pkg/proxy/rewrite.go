package proxy

import (
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"meridian-hq/oagw/pkg/registry"
)

// SplitAlias extracts the upstream alias (first non-empty path segment)
// and the upstream-facing rest path. The rest always keeps its leading
// slash; "/openai" and "/openai/" both yield rest "/".
func SplitAlias(path string) (alias, rest string) {
	trimmed := strings.TrimLeft(path, "/")
	if trimmed == "" {
		return "", ""
	}

	alias, rest, found := strings.Cut(trimmed, "/")
	if !found {
		return alias, "/"
	}
	return alias, "/" + rest
}

// hopByHopHeaders are never forwarded across the proxy boundary.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Keep-Alive",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// filterHeaders clones h without hop-by-hop headers, including any
// named by the Connection header itself.
func filterHeaders(h http.Header) http.Header {
	out := h.Clone()
	for _, value := range h.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = textproto.TrimString(name); name != "" {
				out.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		out.Del(name)
	}
	return out
}

// addForwardedHeaders appends the caller to X-Forwarded-For and records
// the inbound host.
func addForwardedHeaders(h http.Header, remoteAddr, host string) {
	if ip, _, err := net.SplitHostPort(remoteAddr); err == nil && ip != "" {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			h.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			h.Set("X-Forwarded-For", ip)
		}
	}
	if host != "" {
		h.Set("X-Forwarded-Host", host)
	}
}

// endpointURL builds the outbound URL for one endpoint: the endpoint's
// origin, the upstream-facing rest path, and the inbound query.
func endpointURL(ep registry.Endpoint, rest, rawQuery string) *url.URL {
	host := ep.Host
	// Default ports stay implicit so the Host header looks natural.
	if !(ep.Scheme == "http" && ep.Port == 80) && !(ep.Scheme == "https" && ep.Port == 443) {
		host = net.JoinHostPort(ep.Host, strconv.Itoa(ep.Port))
	}
	return &url.URL{
		Scheme:   ep.Scheme,
		Host:     host,
		Path:     rest,
		RawQuery: rawQuery,
	}
}
