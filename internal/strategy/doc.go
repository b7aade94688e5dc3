// Package strategy defines the load balancing strategy interface and
// implements the selection algorithms:
//
//   - Round Robin: sequential distribution over a shared atomic cursor (default)
//   - Random: random backend selection
//   - Least Connections: routes to the backend with fewest active connections
//
// Strategies select among the candidates they are handed; health filtering
// and fallback belong to the load balancer.
package strategy
