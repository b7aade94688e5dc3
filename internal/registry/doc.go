// Package registry holds the upstream backend pool. It hands out
// stable snapshots for selection, records per-attempt outcomes, and
// supports administrative draining. Pool membership is static for the
// lifetime of the process.
package registry
