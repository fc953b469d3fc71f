// OAGW is an in-process outbound API gateway: it multiplexes calls from
// internal callers to external upstream services by alias, injecting
// upstream credentials, enforcing rate limits and preserving streaming
// semantics for SSE and WebSocket traffic.
//
// Usage:
//
//	# Start the gateway with default configuration
//	oagw run
//
//	# Start with a custom configuration file
//	oagw run --config /etc/oagw/config.yaml
//
//	# Validate configuration and seed file without starting
//	oagw validate
//
//	# Show version information
//	oagw version
package main

func main() {
	Execute()
}
