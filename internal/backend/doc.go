// Package backend models a single upstream server: its address, health
// state (healthy, unhealthy, draining), active connection count, and
// failure accounting. A backend turns unhealthy after a configurable number
// of consecutive failures inside a sliding window, and a single success
// restores it.
package backend
