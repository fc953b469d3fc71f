// Package metrics exposes Prometheus collectors for the gateway.
//
// A single Collector owns every metric family: request counters and
// latency histograms labeled by upstream alias, throttle and denial
// counters, active stream gauges, and endpoint fallback counters. The
// collector registers against its own prometheus.Registry so tests can
// run isolated instances.
package metrics
