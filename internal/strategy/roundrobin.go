package strategy

import (
	"sync/atomic"

	"github.com/angeloszaimis/reverse-proxy/internal/backend"
)

// roundRobinStrategy advances a shared cursor with a single atomic
// increment per selection, so concurrent requests never lose an update
// and long-run distribution stays even.
type roundRobinStrategy struct {
	current uint64
}

func (rr *roundRobinStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	n := atomic.AddUint64(&rr.current, 1)

	index := (n - 1) % uint64(len(backends))

	return backends[index]
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{
		current: 0,
	}
}
