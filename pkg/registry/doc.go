// Package registry implements the upstream and route registries.
//
// Upstreams are indexed by id and by alias (O(1) for both); routes are
// indexed by upstream and kept in declared order — the first matching
// rule wins and the ordering is a contract. Records are immutable once
// stored: every write replaces the record wholesale under a
// single-writer lock, and readers capture copy-on-write snapshots that
// stay consistent for the lifetime of one proxied request, even across
// concurrent CRUD.
//
// All invariants (alias grammar, endpoint ranges, pattern syntax,
// duplicate rules) are enforced on the write path, so a snapshot never
// carries an invalid record.
package registry
