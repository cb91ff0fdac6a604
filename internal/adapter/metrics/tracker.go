// Package metrics tracks the rolling per-engine counters named in spec
// section 3 (EngineMetrics), grounded on the atomic sync.Map idiom the
// teacher uses for its health StatusTransitionTracker and CircuitBreaker.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

const latencyWindow = 128

// Tracker holds one counter set per engine identity.
type Tracker struct {
	engines sync.Map // map[domain.EngineIdentity]*counters
}

type counters struct {
	mu          sync.Mutex
	latencies   []int64
	requestsOk  int64
	requestsErr int64
	lastOkNano  int64
	lastErrNano int64
}

func New() *Tracker { return &Tracker{} }

func (t *Tracker) stateFor(identity domain.EngineIdentity) *counters {
	actual, _ := t.engines.LoadOrStore(identity, &counters{})
	return actual.(*counters)
}

// RecordSuccess logs a successful dispatch and its latency.
func (t *Tracker) RecordSuccess(identity domain.EngineIdentity, latency time.Duration) {
	c := t.stateFor(identity)
	atomic.AddInt64(&c.requestsOk, 1)
	atomic.StoreInt64(&c.lastOkNano, time.Now().UnixNano())
	c.pushLatency(latency)
}

// RecordFailure logs a failed dispatch.
func (t *Tracker) RecordFailure(identity domain.EngineIdentity) {
	c := t.stateFor(identity)
	atomic.AddInt64(&c.requestsErr, 1)
	atomic.StoreInt64(&c.lastErrNano, time.Now().UnixNano())
}

func (c *counters) pushLatency(latency time.Duration) {
	ms := latency.Milliseconds()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies = append(c.latencies, ms)
	if len(c.latencies) > latencyWindow {
		c.latencies = c.latencies[len(c.latencies)-latencyWindow:]
	}
}

func (c *counters) percentiles() (p50, p95 int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.latencies)
	if n == 0 {
		return 0, 0
	}
	sorted := append([]int64(nil), c.latencies...)
	sortInt64s(sorted)
	return sorted[(n*50)/100], sorted[minInt((n*95)/100, n-1)]
}

func sortInt64s(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Snapshot returns the current counter values for one engine.
func (t *Tracker) Snapshot(identity domain.EngineIdentity) (domain.EngineMetricsSnapshot, bool) {
	value, ok := t.engines.Load(identity)
	if !ok {
		return domain.EngineMetricsSnapshot{}, false
	}
	c := value.(*counters)
	p50, p95 := c.percentiles()

	snap := domain.EngineMetricsSnapshot{
		Identity:     identity,
		RequestsOk:   atomic.LoadInt64(&c.requestsOk),
		RequestsErr:  atomic.LoadInt64(&c.requestsErr),
		P50LatencyMs: p50,
		P95LatencyMs: p95,
	}
	if nano := atomic.LoadInt64(&c.lastOkNano); nano > 0 {
		snap.LastOkAt = time.Unix(0, nano)
	}
	if nano := atomic.LoadInt64(&c.lastErrNano); nano > 0 {
		snap.LastErrAt = time.Unix(0, nano)
	}
	return snap, true
}

// All returns a snapshot per tracked engine.
func (t *Tracker) All() []domain.EngineMetricsSnapshot {
	var out []domain.EngineMetricsSnapshot
	t.engines.Range(func(key, _ interface{}) bool {
		identity := key.(domain.EngineIdentity)
		if snap, ok := t.Snapshot(identity); ok {
			out = append(out, snap)
		}
		return true
	})
	return out
}
