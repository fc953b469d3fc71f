// Package credentials implements the process-wide credential store and
// the providers that seed it.
//
// Credentials are opaque id → secret records held in memory for the
// process lifetime. Auth plugins read secrets at apply time, so removal
// invalidates future lookups without aborting in-flight requests that
// already captured the secret.
//
// Providers seed and refresh the store from different sources: static
// configuration, environment variables, and a watched directory of
// secret files (one file per credential id).
package credentials
