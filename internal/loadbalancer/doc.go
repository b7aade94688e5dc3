// Package loadbalancer selects a backend for each request: healthy
// backends via the configured strategy, with a least-recently-failed
// fallback when the whole pool is unhealthy.
package loadbalancer
