// Package gateway assembles the outbound gateway and exposes its
// service facade: CRUD over upstreams and routes, the proxy entry
// point, and lifecycle management.
//
// A Gateway owns the registries, the credential store, the rate-limit
// engine, the authorization gate and the forwarder. A background cron
// sweep garbage-collects idle rate-limit buckets and refreshes
// credential providers. Close stops the sweep, rejects new requests
// and releases pooled upstream connections; requests already in flight
// run to completion on their captured snapshots.
package gateway
