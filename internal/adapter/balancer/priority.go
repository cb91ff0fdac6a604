// Package balancer orders the engines a model prefers into the sequence
// the Engine Manager tries them in, grounded on the teacher's
// PrioritySelector but made deterministic: the manager's failover (spec
// section 4.4) tries engines in a fixed order, never a weighted-random
// pick among ties.
package balancer

import (
	"sort"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

// FailoverOrder sorts endpoints into the order the Engine Manager should
// try them in: highest Priority first, ties broken by Identity so the
// same roster always yields the same order.
type FailoverOrder struct{}

func NewFailoverOrder() *FailoverOrder {
	return &FailoverOrder{}
}

// Order returns a new slice, leaving the input untouched.
func (o *FailoverOrder) Order(endpoints []*domain.EngineEndpoint) []*domain.EngineEndpoint {
	ordered := make([]*domain.EngineEndpoint, len(endpoints))
	copy(ordered, endpoints)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].Identity < ordered[j].Identity
	})

	return ordered
}

// FilterRoutable keeps only the endpoints whose breaker currently admits
// requests, preserving relative order.
func (o *FailoverOrder) FilterRoutable(endpoints []*domain.EngineEndpoint, allowed func(domain.EngineIdentity) bool) []*domain.EngineEndpoint {
	routable := make([]*domain.EngineEndpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if allowed(e.Identity) {
			routable = append(routable, e)
		}
	}
	return routable
}
