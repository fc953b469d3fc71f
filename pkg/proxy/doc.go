// Package proxy implements the per-request pipeline and the
// protocol-aware forwarder.
//
// A request travels the stages strictly in order: alias resolution,
// route selection, authorization, rate limiting, outbound head
// construction, auth plugin application, and dispatch. Any stage's
// failure short-circuits the rest and surfaces as a structured problem
// envelope.
//
// The forwarder selects its branch from the upstream's protocol tag and
// the request's upgrade headers: unary HTTP with connect-phase endpoint
// fallback, streamed bodies (including SSE pass-through with per-chunk
// flushing), and single-hop WebSocket bridging. Only the header phase
// is deadline-bounded; established streams run until either side
// closes.
package proxy
