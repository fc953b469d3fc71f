package authplugin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"meridian-hq/oagw/pkg/credentials"
)

// RequestHead is the mutable view of an outbound request that plugins
// may modify. The body stream is deliberately absent.
type RequestHead struct {
	Method string
	URL    *url.URL
	Header http.Header
}

// Plugin mutates the outbound request head. Implementations must be
// stateless with respect to the request stream and safe for concurrent
// use across requests.
type Plugin interface {
	// Name returns the registered plugin name.
	Name() string

	// Apply mutates the request head in place. A returned error aborts
	// the pipeline.
	Apply(ctx context.Context, head *RequestHead) error
}

// Constructor builds a plugin instance from its config blob and a
// read-only view of the credential store.
type Constructor func(config map[string]any, creds credentials.Reader) (Plugin, error)

// ApplyError wraps a plugin failure with the plugin name for logging.
type ApplyError struct {
	Plugin string
	Err    error
}

// Error implements the error interface.
func (e *ApplyError) Error() string {
	return fmt.Sprintf("auth plugin %q: %v", e.Plugin, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ApplyError) Unwrap() error { return e.Err }

// Chain applies plugins in order, stopping at the first failure.
func Chain(ctx context.Context, head *RequestHead, plugins []Plugin) error {
	for _, p := range plugins {
		if err := p.Apply(ctx, head); err != nil {
			return &ApplyError{Plugin: p.Name(), Err: err}
		}
	}
	return nil
}
