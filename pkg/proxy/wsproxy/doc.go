// Package wsproxy bridges one inbound WebSocket connection to one
// outbound connection.
//
// The outbound upgrade happens first; only after it succeeds is the
// inbound upgrade completed, echoing the subprotocol the upstream
// selected. Two pumps then copy messages independently, one per
// direction. A close frame on either side is forwarded with its code
// and reason when the code is legal on the wire; abnormal closures are
// forwarded as 1011. Any pump failure tears down both directions.
package wsproxy
