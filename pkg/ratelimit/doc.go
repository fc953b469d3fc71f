// Package ratelimit implements the keyed token-bucket engine used by the
// proxy pipeline.
//
// Buckets are created lazily on first acquire for a key and refill
// continuously: fractional tokens carry between calls, so the admitted
// count over any window [t, t+d] never exceeds capacity + refill*d + 1.
// A bucket with a zero refill rate is a fixed pool that never refills.
//
// The engine shards its key map to avoid global contention and
// garbage-collects buckets left idle for at least ten full refill
// periods.
package ratelimit
