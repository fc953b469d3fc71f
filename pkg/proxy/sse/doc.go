// Package sse implements the Server-Sent Events wire grammar used by
// the streaming forwarder.
//
// The parser is incremental: it reads "field: value" lines from an
// io.Reader, tolerates both LF and CRLF line endings, drops comment
// lines, joins continuation data lines with newlines, and dispatches an
// event at every blank line. The writer serializes events back to the
// same grammar, and parse(serialize(e)) == e for every representable
// event.
package sse
