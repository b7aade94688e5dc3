package backend

import (
	"net/url"
	"sync"
	"time"
)

// State describes a backend's availability for selection.
type State int

const (
	StateHealthy State = iota
	StateUnhealthy
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Backend represents one upstream server with health state, connection
// tracking, and failure accounting.
type Backend struct {
	url *url.URL

	mutex             sync.Mutex
	state             State
	activeConnections int
	consecutiveFails  int
	totalFailures     int64
	lastFailure       time.Time
	totalAttempts     int64
	totalLatency      time.Duration

	failureThreshold int
	failureWindow    time.Duration
}

// New creates a Backend for the given URL. The backend starts healthy.
// failureThreshold consecutive failures within failureWindow mark it
// unhealthy.
func New(u *url.URL, failureThreshold int, failureWindow time.Duration) *Backend {
	return &Backend{
		url:              u,
		state:            StateHealthy,
		failureThreshold: failureThreshold,
		failureWindow:    failureWindow,
	}
}

// URL returns the backend server URL.
func (b *Backend) URL() *url.URL {
	return b.url
}

// State returns the current health state.
func (b *Backend) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// IsHealthy returns true if the backend is currently healthy.
func (b *Backend) IsHealthy() bool {
	return b.State() == StateHealthy
}

// IncrementConn increments the active connection count.
func (b *Backend) IncrementConn() {
	b.mutex.Lock()
	b.activeConnections++
	b.mutex.Unlock()
}

// DecrementConn decrements the active connection count.
func (b *Backend) DecrementConn() {
	b.mutex.Lock()
	if b.activeConnections > 0 {
		b.activeConnections--
	}
	b.mutex.Unlock()
}

// ActiveConnections returns the current number of active connections.
func (b *Backend) ActiveConnections() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.activeConnections
}

// RecordFailure counts one failed forwarding attempt. A failure streak
// older than the failure window starts over rather than accumulating.
// Returns true if the backend transitioned to unhealthy.
func (b *Backend) RecordFailure(now time.Time, latency time.Duration) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.failureWindow {
		b.consecutiveFails = 0
	}

	b.consecutiveFails++
	b.totalFailures++
	b.lastFailure = now
	b.totalAttempts++
	b.totalLatency += latency

	if b.state == StateHealthy && b.consecutiveFails >= b.failureThreshold {
		b.state = StateUnhealthy
		return true
	}

	return false
}

// RecordSuccess resets the failure streak. A single success restores an
// unhealthy backend; draining backends stay draining.
// Returns true if the backend transitioned to healthy.
func (b *Backend) RecordSuccess(latency time.Duration) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.consecutiveFails = 0
	b.totalAttempts++
	b.totalLatency += latency

	if b.state == StateUnhealthy {
		b.state = StateHealthy
		return true
	}

	return false
}

// SetDraining moves the backend in or out of the draining state. Undraining
// restores the backend to healthy with a clean failure streak.
// Returns true if the state changed.
func (b *Backend) SetDraining(draining bool) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if draining {
		if b.state == StateDraining {
			return false
		}
		b.state = StateDraining
		return true
	}

	if b.state != StateDraining {
		return false
	}
	b.state = StateHealthy
	b.consecutiveFails = 0
	return true
}

// LastFailure returns the time of the most recent failed attempt, or the
// zero time if the backend has never failed.
func (b *Backend) LastFailure() time.Time {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.lastFailure
}

// TotalFailures returns the cumulative failure count.
func (b *Backend) TotalFailures() int64 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.totalFailures
}

// ConsecutiveFailures returns the current failure streak.
func (b *Backend) ConsecutiveFailures() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.consecutiveFails
}

// AverageLatency returns the mean latency across all recorded attempts.
// Returns 0 if nothing has been recorded yet.
func (b *Backend) AverageLatency() time.Duration {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.totalAttempts == 0 {
		return 0
	}

	return b.totalLatency / time.Duration(b.totalAttempts)
}
