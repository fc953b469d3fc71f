package authplugin

import (
	"context"

	"meridian-hq/oagw/pkg/credentials"
)

// noopPlugin makes no modifications and approves every request.
type noopPlugin struct{}

func newNoop(_ map[string]any, _ credentials.Reader) (Plugin, error) {
	return noopPlugin{}, nil
}

// Name returns the registered plugin name.
func (noopPlugin) Name() string { return "noop" }

// Apply approves without changes.
func (noopPlugin) Apply(_ context.Context, _ *RequestHead) error { return nil }
