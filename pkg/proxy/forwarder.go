package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"meridian-hq/oagw/pkg/problem"
	"meridian-hq/oagw/pkg/registry"
	"meridian-hq/oagw/pkg/telemetry/metrics"
)

// Forwarder dispatches outbound requests for the pipeline.
type Forwarder struct {
	transport    *http.Transport
	proxyTimeout time.Duration
	metrics      *metrics.Collector
}

// NewForwarder creates a forwarder. proxyTimeout bounds the time to the
// first byte of response headers on each attempt; established bodies
// stream without a deadline.
func NewForwarder(proxyTimeout time.Duration, collector *metrics.Collector) *Forwarder {
	return &Forwarder{
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   proxyTimeout,
				KeepAlive: 60 * time.Second,
			}).DialContext,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
			TLSHandshakeTimeout:   proxyTimeout,
			ResponseHeaderTimeout: proxyTimeout,
			MaxIdleConns:          200,
			MaxIdleConnsPerHost:   32,
			IdleConnTimeout:       90 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
		proxyTimeout: proxyTimeout,
		metrics:      collector,
	}
}

// Do sends the outbound request, walking the endpoint list on
// connect-phase failures only. Every attempt rebuilds the URL for its
// endpoint; the remaining attempts share what is left of the header
// deadline via ctx. A non-2xx response is returned as-is, never
// retried.
func (f *Forwarder) Do(ctx context.Context, u *registry.Upstream, head *outboundHead, body io.ReadCloser) (*http.Response, error) {
	deadline := time.Now().Add(f.proxyTimeout)

	// Inbound requests report chunked bodies as -1 and empty bodies as
	// 0; an empty body must not come out chunked.
	if head.contentLength == 0 {
		body = http.NoBody
	} else if body != nil {
		// The transport closes a request body when an attempt fails;
		// shielding the inbound body keeps it readable for a fallback.
		body = io.NopCloser(body)
	}

	var lastErr error
	for i, ep := range u.Server {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		req, err := http.NewRequestWithContext(ctx, head.method, endpointURL(ep, head.path, head.rawQuery).String(), body)
		if err != nil {
			return nil, problem.Internal("failed to build outbound request")
		}
		req.Header = head.header.Clone()
		// A known inbound length carries through; unknown lengths
		// stream chunked with back-pressure.
		req.ContentLength = head.contentLength

		if i > 0 {
			f.metrics.ObserveFallback(u.Alias)
			slog.Debug("endpoint fallback",
				"upstream", u.Alias,
				"endpoint", req.URL.Host,
				"attempt", i+1,
			)
		}

		resp, err := f.roundTripHeaderBounded(req, remaining)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isConnectError(err) {
			break
		}
		// Connect-phase failure: the body was never touched, so the
		// next endpoint can replay it.
	}

	if lastErr == nil {
		return nil, problem.UpstreamTimeout("header deadline exhausted before any endpoint answered")
	}
	if isTimeoutError(lastErr) {
		return nil, problem.UpstreamTimeout(lastErr.Error())
	}
	return nil, problem.UpstreamUnreachable(lastErr.Error())
}

// roundTripHeaderBounded bounds one attempt's header phase without
// putting a deadline on the streamed body: the cancel fires only if
// headers have not arrived when the timer expires, and on success it
// is handed to the response body's Close.
func (f *Forwarder) roundTripHeaderBounded(req *http.Request, remaining time.Duration) (*http.Response, error) {
	attemptCtx, cancel := context.WithCancel(req.Context())
	var timedOut atomic.Bool
	timer := time.AfterFunc(remaining, func() {
		timedOut.Store(true)
		cancel()
	})

	resp, err := f.transport.RoundTrip(req.WithContext(attemptCtx))
	if err != nil {
		timer.Stop()
		cancel()
		if timedOut.Load() {
			return nil, fmt.Errorf("header deadline exceeded: %w", context.DeadlineExceeded)
		}
		return nil, err
	}

	timer.Stop()
	resp.Body = &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnCloseBody releases the attempt context when the consumer is
// done with the body.
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// outboundHead is the mutable request head handed through the plugin
// chain before dispatch.
type outboundHead struct {
	method        string
	path          string
	rawQuery      string
	header        http.Header
	contentLength int64
}

// isConnectError reports whether the transport failed before the
// request was written: dial and TLS handshake failures qualify for
// endpoint fallback, anything later does not.
func isConnectError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	var tlsErr *tls.RecordHeaderError
	if errors.As(err, &tlsErr) {
		return true
	}
	// The transport wraps TLS handshake failures in plain errors.
	return strings.Contains(err.Error(), "tls: handshake")
}

// isTimeoutError distinguishes 504 from 502.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// CopyResponse writes resp to w, streaming the body with per-chunk
// flushing so SSE and chunked responses reach the caller promptly.
// Hop-by-hop headers are dropped on the way back out.
func CopyResponse(w http.ResponseWriter, resp *http.Response) error {
	defer resp.Body.Close()

	header := filterHeaders(resp.Header)
	dst := w.Header()
	for name, values := range header {
		dst[name] = values
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("upstream body read: %w", err)
		}
	}
}

// IsEventStream reports whether a response is Server-Sent Events.
func IsEventStream(resp *http.Response) bool {
	return strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream")
}

// CloseIdleConnections releases pooled upstream connections.
func (f *Forwarder) CloseIdleConnections() {
	f.transport.CloseIdleConnections()
}
