// Package server hosts the gateway's inbound HTTP listener.
//
// The proxy handler is mounted at the root; /healthz and /metrics are
// served alongside when the admin endpoints are enabled. Shutdown is
// graceful with a configured timeout.
package server
