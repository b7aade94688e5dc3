package strategy

import (
	"math"

	"github.com/angeloszaimis/reverse-proxy/internal/backend"
)

type leastConnStrategy struct {
}

func (l *leastConnStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	var bestBackend *backend.Backend
	bestConns := math.MaxInt32

	for _, b := range backends {
		activeConns := b.ActiveConnections()
		if activeConns < bestConns {
			bestConns = activeConns
			bestBackend = b
		}
	}

	return bestBackend
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}
