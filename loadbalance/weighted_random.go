package loadbalance

import (
	"math/rand/v2"

	"pbtcp/registry"
)

// WeightedRandomBalancer picks an endpoint with probability proportional to
// its weight. Endpoints with a weight <= 0 count as weight 1.
type WeightedRandomBalancer struct{}

func weight(ep *registry.Endpoint) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}

func (b *WeightedRandomBalancer) Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, registry.ErrNoEndpoints
	}

	total := 0
	for i := range endpoints {
		total += weight(&endpoints[i])
	}

	r := rand.IntN(total)
	for i := range endpoints {
		r -= weight(&endpoints[i])
		if r < 0 {
			return &endpoints[i], nil
		}
	}
	return &endpoints[len(endpoints)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}
