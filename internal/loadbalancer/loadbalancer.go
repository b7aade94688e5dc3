package loadbalancer

import (
	"errors"

	"github.com/angeloszaimis/reverse-proxy/internal/backend"
	"github.com/angeloszaimis/reverse-proxy/internal/strategy"
)

// ErrNoBackendAvailable means the pool is empty or every backend is
// excluded from selection.
var ErrNoBackendAvailable = errors.New("no backend available")

type LoadBalancer struct {
	strategy strategy.Strategy
}

func New(strat strategy.Strategy) *LoadBalancer {
	return &LoadBalancer{
		strategy: strat,
	}
}

// Select picks a backend for a request. Healthy backends are preferred;
// when none remain the least-recently-failed unhealthy backend is returned,
// so a degraded pool keeps serving instead of hard-failing. Draining
// backends and exclude are never picked. exclude may be nil.
func (lb *LoadBalancer) Select(backends []*backend.Backend, exclude *backend.Backend) (*backend.Backend, error) {
	healthy := make([]*backend.Backend, 0, len(backends))
	for _, b := range backends {
		if b == exclude {
			continue
		}
		if b.State() == backend.StateHealthy {
			healthy = append(healthy, b)
		}
	}

	if len(healthy) > 0 {
		if chosen := lb.strategy.SelectBackend(healthy); chosen != nil {
			return chosen, nil
		}
	}

	if fallback := leastRecentlyFailed(backends, exclude); fallback != nil {
		return fallback, nil
	}

	return nil, ErrNoBackendAvailable
}

// Strategy returns the configured selection strategy.
func (lb *LoadBalancer) Strategy() strategy.Strategy {
	return lb.strategy
}

func leastRecentlyFailed(backends []*backend.Backend, exclude *backend.Backend) *backend.Backend {
	var best *backend.Backend

	for _, b := range backends {
		if b == exclude || b.State() != backend.StateUnhealthy {
			continue
		}
		if best == nil || b.LastFailure().Before(best.LastFailure()) {
			best = b
		}
	}

	return best
}
