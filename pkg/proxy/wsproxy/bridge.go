package wsproxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Bridge proxies WebSocket connections through a single hop.
type Bridge struct {
	// IdleTimeout bounds inactivity in either direction. Zero disables
	// the check.
	IdleTimeout time.Duration

	// HandshakeTimeout bounds the outbound upgrade.
	HandshakeTimeout time.Duration
}

// DialError reports an outbound upgrade failure. The inbound
// connection has not been touched when it is returned, so the caller
// can still write a plain HTTP response.
type DialError struct {
	// Status is the upstream's HTTP status when it rejected the
	// upgrade, zero when the connection never got that far.
	Status int
	Err    error
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream rejected upgrade with status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("upstream dial failed: %v", e.Err)
}

// Unwrap exposes the underlying cause.
func (e *DialError) Unwrap() error { return e.Err }

// IsUpgrade reports whether the request asks for a WebSocket upgrade.
func IsUpgrade(r *http.Request) bool {
	return headerContainsToken(r.Header, "Connection", "upgrade") &&
		headerContainsToken(r.Header, "Upgrade", "websocket")
}

func headerContainsToken(h http.Header, name, token string) bool {
	for _, value := range h.Values(name) {
		for _, part := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}

// Proxy dials targetURL, completes the inbound upgrade and pumps
// messages until either side closes. requestHeader carries the
// already-filtered outbound headers (auth plugins included); the
// WebSocket handshake headers themselves are managed by the dialer.
//
// A dial failure is returned before the inbound connection is touched,
// so the caller can still write a plain HTTP error response.
func (b *Bridge) Proxy(ctx context.Context, w http.ResponseWriter, r *http.Request, targetURL string, requestHeader http.Header) error {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: b.HandshakeTimeout,
		Subprotocols:     websocket.Subprotocols(r),
	}

	outHeader := requestHeader.Clone()
	if outHeader == nil {
		outHeader = http.Header{}
	}
	// The dialer generates its own handshake headers.
	for _, name := range []string{
		"Upgrade", "Connection", "Sec-Websocket-Key", "Sec-Websocket-Version",
		"Sec-Websocket-Extensions", "Sec-Websocket-Protocol",
	} {
		outHeader.Del(name)
	}

	upstream, resp, err := dialer.DialContext(ctx, targetURL, outHeader)
	if err != nil {
		if resp != nil {
			return &DialError{Status: resp.StatusCode, Err: err}
		}
		return &DialError{Err: err}
	}
	defer upstream.Close()

	// Echo the subprotocol the upstream selected.
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	var responseHeader http.Header
	if proto := upstream.Subprotocol(); proto != "" {
		responseHeader = http.Header{"Sec-Websocket-Protocol": {proto}}
	}

	inbound, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return fmt.Errorf("inbound upgrade failed: %w", err)
	}
	defer inbound.Close()

	slog.Debug("websocket bridge open",
		"target", targetURL,
		"subprotocol", upstream.Subprotocol(),
	)

	errc := make(chan error, 2)
	go b.pump(inbound, upstream, errc)
	go b.pump(upstream, inbound, errc)

	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}

	// Closing both connections unblocks the surviving pump.
	_ = inbound.Close()
	_ = upstream.Close()

	if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return err
	}
	return nil
}

// pump copies messages src -> dst until src fails or closes, then
// forwards a close frame to dst.
func (b *Bridge) pump(src, dst *websocket.Conn, errc chan<- error) {
	for {
		if b.IdleTimeout > 0 {
			_ = src.SetReadDeadline(time.Now().Add(b.IdleTimeout))
		}

		messageType, payload, err := src.ReadMessage()
		if err != nil {
			dst.WriteControl(websocket.CloseMessage, closeFrameFor(err), time.Now().Add(5*time.Second))
			errc <- err
			return
		}

		if err := dst.WriteMessage(messageType, payload); err != nil {
			errc <- err
			return
		}
	}
}

// closeFrameFor translates a read error into the close frame forwarded
// to the peer: graceful closes keep their code and reason, everything
// else becomes 1011.
func closeFrameFor(err error) []byte {
	if closeErr, ok := err.(*websocket.CloseError); ok && forwardableCloseCode(closeErr.Code) {
		return websocket.FormatCloseMessage(closeErr.Code, closeErr.Text)
	}
	return websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "")
}

// forwardableCloseCode reports whether a close code may be sent on the
// wire. Reserved codes (1005, 1006, 1015) are signalled, never sent.
func forwardableCloseCode(code int) bool {
	switch code {
	case websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure, websocket.CloseTLSHandshake:
		return false
	}
	return code >= 1000 && code < 5000
}
