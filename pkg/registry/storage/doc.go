// Package storage provides persistence backends for the registry.
//
// Two backends ship: Memory, which keeps records in process (the
// default, and what tests use), and SQLite, which persists records as
// JSON rows so upstream and route definitions survive restarts. Both
// preserve the declared order of routes per upstream, which the
// registry's first-match-wins contract depends on.
package storage
