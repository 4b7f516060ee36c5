package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strings"
	"sync"

	"pbtcp/registry"
)

// ConsistentHashBalancer maps a fixed affinity key (a user or session id) to
// an endpoint on a hash ring, so every client built with the same key reaches
// the same server while the endpoint set is stable.
//
// Each endpoint is placed on the ring as replicas virtual nodes to spread
// the load evenly.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	key      string
	replicas int

	mu      sync.Mutex
	members string   // endpoint addrs the ring was built from
	ring    []uint32 // sorted
	nodes   map[uint32]string
}

// NewConsistentHashBalancer returns a balancer for key with 100 virtual nodes
// per endpoint.
func NewConsistentHashBalancer(key string) *ConsistentHashBalancer {
	return &ConsistentHashBalancer{key: key, replicas: 100}
}

func (b *ConsistentHashBalancer) Pick(endpoints []registry.Endpoint) (*registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, registry.ErrNoEndpoints
	}

	b.mu.Lock()
	b.rebuild(endpoints)
	hash := crc32.ChecksumIEEE([]byte(b.key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	addr := b.nodes[b.ring[idx]]
	b.mu.Unlock()

	for i := range endpoints {
		if endpoints[i].Addr == addr {
			return &endpoints[i], nil
		}
	}
	return nil, registry.ErrNoEndpoints
}

// rebuild recomputes the ring when the endpoint set changed.
func (b *ConsistentHashBalancer) rebuild(endpoints []registry.Endpoint) {
	addrs := make([]string, len(endpoints))
	for i := range endpoints {
		addrs[i] = endpoints[i].Addr
	}
	sort.Strings(addrs)
	members := strings.Join(addrs, ",")
	if members == b.members && b.ring != nil {
		return
	}

	b.members = members
	b.ring = make([]uint32, 0, len(addrs)*b.replicas)
	b.nodes = make(map[uint32]string, len(addrs)*b.replicas)
	for _, addr := range addrs {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", addr, i)))
			b.ring = append(b.ring, hash)
			b.nodes[hash] = addr
		}
	}
	sort.Slice(b.ring, func(i, j int) bool {
		return b.ring[i] < b.ring[j]
	})
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
