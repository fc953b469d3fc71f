// Package authplugin implements composable request-head mutators and
// their constructor registry.
//
// A plugin mutates only the outbound request head (method, URL, headers)
// and never touches the body stream. Plugins compose in a fixed order:
// the upstream's plugin first, then each route plugin in declared order.
// The first plugin failure aborts the pipeline.
//
// Two plugins ship built in: "noop", which approves without changes, and
// "api-key", which reads a secret from the credential store at apply
// time and writes it to a header or query parameter.
package authplugin
