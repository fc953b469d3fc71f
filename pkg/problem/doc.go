// Package problem implements the structured error envelope surfaced to
// gateway callers.
//
// Every error leaving the gateway is rendered as a Problem: a qualified
// type id, an HTTP status, a short title, an optional detail string, and
// structured metadata. The shape follows RFC 9457 Problem Details and is
// written with the application/problem+json content type.
//
// Problems implement the error interface so they can flow through normal
// error returns and be recovered at the HTTP boundary with From.
package problem
