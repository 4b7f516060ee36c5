// Package loadbalance picks one endpoint out of the endpoints a registry
// returns for a service.
//
// Three strategies are implemented:
//   - RoundRobin:      equal-capacity endpoints, taken in turn
//   - WeightedRandom:  endpoints of different capacity, by Endpoint.Weight
//   - ConsistentHash:  a fixed affinity key always lands on the same endpoint
package loadbalance

import (
	"pbtcp/registry"
)

// Balancer selects an endpoint. Pick must be safe for concurrent use.
type Balancer interface {
	Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error)
	Name() string
}
