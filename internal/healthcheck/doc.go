// Package healthcheck implements the recovery prober. It watches
// unhealthy backends and returns them to rotation after a successful
// probe; healthy backends are tracked passively through request outcomes.
package healthcheck
