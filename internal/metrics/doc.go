// Package metrics aggregates request, selection, failure and health events
// from the proxy over a buffered channel and serves a JSON snapshot with
// per-backend counters and latency percentiles.
package metrics
