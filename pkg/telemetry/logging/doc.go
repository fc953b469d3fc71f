// Package logging configures structured logging for the gateway.
//
// The gateway logs through log/slog. This package builds the process
// handler from configuration (level, json or text format), redacts
// secret-bearing attribute values, and carries request-scoped fields
// through context.
package logging
