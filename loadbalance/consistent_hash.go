package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/TritonDataCenter/rust-fast/registry"
)

// ConsistentHashBalancer maps keys to instances on a hash ring, so the
// same key routes to the same instance until the ring changes. Each
// real instance is placed at 100 virtual node positions on the ring;
// without virtual nodes, a handful of instances can cluster together
// and skew load.
type ConsistentHashBalancer struct {
	replicas int
	ring     []uint32
	nodes    map[uint32]*registry.Instance
}

// NewConsistentHashBalancer creates a hash ring with 100 virtual nodes
// per instance.
func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]*registry.Instance),
	}
}

// Add places instance onto the ring at its virtual node positions,
// hashing "{addr}#{i}" for each one.
func (b *ConsistentHashBalancer) Add(instance *registry.Instance) {
	for i := 0; i < b.replicas; i++ {
		key := fmt.Sprintf("%s#%d", instance.Addr, i)
		hash := crc32.ChecksumIEEE([]byte(key))
		b.ring = append(b.ring, hash)
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Pick finds the instance responsible for key: hash the key, then
// binary-search for the first ring position at or past that hash,
// wrapping around to the first position if the key's hash is past the
// last one. Pick takes a string key rather than an instance list
// because consistent hashing is key-based; it does not implement
// Balancer directly.
func (b *ConsistentHashBalancer) Pick(key string) (*registry.Instance, error) {
	if len(b.ring) == 0 {
		return nil, fmt.Errorf("fast: no instances available")
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool { return b.ring[i] >= hash })
	if idx == len(b.ring) {
		idx = 0
	}

	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
