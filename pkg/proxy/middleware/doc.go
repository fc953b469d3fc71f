// Package middleware provides the HTTP middleware chain wrapped around
// the proxy pipeline: request id propagation, request logging, and
// panic recovery.
package middleware
