package health

import (
	"context"
	"sync"
	"time"

	"github.com/fenwick-ai/inferno/internal/adapter/breaker"
	"github.com/fenwick-ai/inferno/internal/adapter/metrics"
	"github.com/fenwick-ai/inferno/internal/core/domain"
	"github.com/fenwick-ai/inferno/internal/core/ports"
	"github.com/fenwick-ai/inferno/internal/logger"
)

// Monitor is the Health Monitor: it owns the probe schedule for every
// registered engine endpoint, drives circuit breaker recovery through
// half-open probes, and reports degraded mode when every breaker is OPEN.
// It ties together the scheduler, worker pool, prober and tracker the way
// the teacher's HTTPHealthChecker wired its own pieces,
// except each concern now lives in its own adapted file.
type Monitor struct {
	mu        sync.RWMutex
	endpoints map[domain.EngineIdentity]*domain.EngineEndpoint
	breakers  map[domain.EngineIdentity]*breaker.Breaker

	prober    *Prober
	scheduler *Scheduler
	pool      *WorkerPool
	tracker   *StatusTransitionTracker
	stats     *StatsCollector
	metrics   *metrics.Tracker
	recovery  RecoveryCallback
	down      sync.Map // identities whose last probe failed

	checkInterval time.Duration
	running       bool
}

type Config struct {
	CheckInterval time.Duration
	Workers       int
	QueueSize     int
}

func NewMonitor(
	adapters map[domain.EngineIdentity]ports.EngineAdapter,
	breakers map[domain.EngineIdentity]*breaker.Breaker,
	metricsTracker *metrics.Tracker,
	cfg Config,
	recovery RecoveryCallback,
	log *logger.StyledLogger,
) *Monitor {
	if recovery == nil {
		recovery = NoOpRecoveryCallback{}
	}

	m := &Monitor{
		endpoints:     make(map[domain.EngineIdentity]*domain.EngineEndpoint),
		breakers:      breakers,
		prober:        NewProber(adapters),
		tracker:       NewStatusTransitionTracker(),
		metrics:       metricsTracker,
		recovery:      recovery,
		checkInterval: cfg.CheckInterval,
	}
	if m.checkInterval <= 0 {
		m.checkInterval = DefaultCheckInterval
	}

	m.pool = NewWorkerPool(cfg.Workers, cfg.QueueSize, m.checkInterval, m.prober, m.tracker, m.breakerHandle, m.onProbeResult, log)
	m.scheduler = NewScheduler(m.pool.jobCh)
	m.stats = NewStatsCollector(m.pool, m.scheduler, m.tracker)

	return m
}

func (m *Monitor) breakerHandle(identity domain.EngineIdentity) breakerHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[identity]
	if !ok {
		return nil
	}
	return b
}

func (m *Monitor) onProbeResult(identity domain.EngineIdentity, result domain.HealthCheckResult) {
	if result.Healthy {
		m.metrics.RecordSuccess(identity, result.Latency)
		if _, wasDown := m.down.LoadAndDelete(identity); !wasDown {
			return
		}
		m.mu.RLock()
		endpoint := m.endpoints[identity]
		m.mu.RUnlock()
		if endpoint != nil {
			_ = m.recovery.OnEngineRecovered(context.Background(), endpoint)
		}
		return
	}
	m.down.Store(identity, struct{}{})
	m.metrics.RecordFailure(identity)
}

func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	m.running = true
	endpoints := make([]*domain.EngineEndpoint, 0, len(m.endpoints))
	for _, e := range m.endpoints {
		endpoints = append(endpoints, e)
	}
	m.mu.Unlock()

	m.stats.SetRunning(true)
	m.scheduler.Start()
	m.pool.Start(m.scheduler)

	for _, e := range endpoints {
		m.scheduler.ScheduleProbe(e, time.Now())
	}
	return nil
}

func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	m.stats.SetRunning(false)
	m.scheduler.Stop()
	m.pool.Stop()
	return nil
}

func (m *Monitor) RegisterEndpoint(endpoint *domain.EngineEndpoint) {
	m.mu.Lock()
	m.endpoints[endpoint.Identity] = endpoint
	running := m.running
	m.mu.Unlock()

	if running {
		m.scheduler.ScheduleProbe(endpoint, time.Now())
	}
}

func (m *Monitor) UnregisterEndpoint(identity domain.EngineIdentity) {
	m.mu.Lock()
	delete(m.endpoints, identity)
	m.mu.Unlock()
	m.tracker.Forget(identity)
}

// Degraded reports whether every registered engine's breaker is OPEN — the
// gateway-wide failure state.
func (m *Monitor) Degraded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.breakers) == 0 {
		return false
	}
	for _, b := range m.breakers {
		if b.Snapshot().Phase != domain.BreakerOpen {
			return false
		}
	}
	return true
}

func (m *Monitor) Metrics(identity domain.EngineIdentity) (domain.EngineMetricsSnapshot, bool) {
	return m.metrics.Snapshot(identity)
}
