package strategy

import (
	"github.com/angeloszaimis/reverse-proxy/internal/backend"
)

// Strategy picks one backend from a candidate list. The load balancer has
// already filtered the list down to selectable backends; a strategy only
// decides which of them takes the next request.
type Strategy interface {
	SelectBackend(backends []*backend.Backend) *backend.Backend
}
