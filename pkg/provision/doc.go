// Package provision drains pre-configured upstream and route records
// into the registries at startup.
//
// Records come from a TypeProvider. Every record goes through the
// registry's validating write path; failures are logged and skipped so
// one bad record never aborts startup. Provisioning is idempotent by
// id: re-running updates existing records instead of duplicating them.
package provision
