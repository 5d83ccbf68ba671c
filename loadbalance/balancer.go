// Package loadbalance provides strategies for picking which Fast
// server instance a client dials next, given the instance list a
// registry.Registry returned.
//
// Three strategies are implemented:
//   - RoundRobin:      stateless handlers, equal-capacity instances
//   - WeightedRandom:  heterogeneous instances (different CPU/memory)
//   - ConsistentHash:  handlers that benefit from per-key affinity
package loadbalance

import "github.com/TritonDataCenter/rust-fast/registry"

// Balancer picks one instance from a discovered list. A client calls
// Pick before dialing (or before reusing a pooled connection) so the
// selection can react to instances joining or leaving.
type Balancer interface {
	// Pick selects one instance from the available list. Called on
	// every dial decision — must be goroutine-safe.
	Pick(instances []registry.Instance) (*registry.Instance, error)

	// Name identifies the strategy for logging.
	Name() string
}
