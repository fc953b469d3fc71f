// Package authz adapts the external authorization resolver into the
// proxy pipeline.
//
// The gateway never caches decisions; if caching is wanted it belongs
// in the resolver. The gate is consulted exactly once per request,
// after route resolution and before plugin application.
package authz
