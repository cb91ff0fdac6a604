package health

import (
	"context"
	"sync"
	"time"

	"github.com/fenwick-ai/inferno/internal/core/domain"
	"github.com/fenwick-ai/inferno/internal/logger"
)

// probeState is the mutable scheduling state for one endpoint's probes.
// EngineEndpoint itself is immutable, so the backoff multiplier and the
// consecutive failure count live here instead, keyed by identity.
type probeState struct {
	mu                sync.Mutex
	backoffMultiplier int
	consecutiveFails  int
}

// WorkerPool drains due probe jobs with a fixed set of goroutines, grounded
// on the teacher's WorkerPool.
type WorkerPool struct {
	jobCh      chan probeJob
	stopCh     chan struct{}
	wg         sync.WaitGroup
	prober     *Prober
	tracker    *StatusTransitionTracker
	breakers   func(domain.EngineIdentity) breakerHandle
	onResult   func(domain.EngineIdentity, domain.HealthCheckResult)
	states     sync.Map // map[domain.EngineIdentity]*probeState
	interval   time.Duration
	workers    int
	logger     *logger.StyledLogger
	scheduler  *Scheduler
}

// breakerHandle is the subset of breaker.Breaker the worker pool needs to
// drive recovery.
type breakerHandle interface {
	RecordSuccess()
	RecordFailure()
	AllowRequest() bool
	Snapshot() domain.BreakerSnapshot
}

func NewWorkerPool(
	workers, queueSize int,
	checkInterval time.Duration,
	prober *Prober,
	tracker *StatusTransitionTracker,
	breakers func(domain.EngineIdentity) breakerHandle,
	onResult func(domain.EngineIdentity, domain.HealthCheckResult),
	log *logger.StyledLogger,
) *WorkerPool {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	return &WorkerPool{
		jobCh:    make(chan probeJob, queueSize),
		stopCh:   make(chan struct{}),
		workers:  workers,
		interval: checkInterval,
		prober:   prober,
		tracker:  tracker,
		breakers: breakers,
		onResult: onResult,
		logger:   log,
	}
}

func (wp *WorkerPool) JobChannel() chan<- probeJob { return wp.jobCh }

func (wp *WorkerPool) Start(scheduler *Scheduler) {
	wp.scheduler = scheduler
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.run()
	}
}

func (wp *WorkerPool) Stop() {
	close(wp.stopCh)
	wp.wg.Wait()
}

func (wp *WorkerPool) QueueStats() (size, cap int, usage float64) {
	size, cap = len(wp.jobCh), cap(wp.jobCh)
	if cap > 0 {
		usage = float64(size) / float64(cap)
	}
	return
}

func (wp *WorkerPool) run() {
	defer wp.wg.Done()
	for {
		select {
		case <-wp.stopCh:
			return
		case job := <-wp.jobCh:
			wp.process(job)
		}
	}
}

func (wp *WorkerPool) process(job probeJob) {
	// Only a breaker that is not CLOSED takes part in recovery: AllowRequest
	// moves an OPEN breaker whose timeout has elapsed to HALF_OPEN and claims
	// its single probe slot, and only then is the outcome fed back. Probes of
	// a CLOSED breaker update metrics but never open it.
	bh := wp.breakers(job.endpoint.Identity)
	recovering := bh != nil && bh.Snapshot().Phase != domain.BreakerClosed && bh.AllowRequest()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultProbeTimeout)
	result, _ := wp.prober.Probe(ctx, job.endpoint)
	cancel()

	st := wp.stateFor(job.endpoint.Identity)
	st.mu.Lock()
	nextInterval, newMultiplier := calculateBackoff(wp.interval, st.backoffMultiplier, result.Healthy)
	if result.Healthy {
		st.consecutiveFails = 0
	} else {
		st.consecutiveFails++
	}
	st.backoffMultiplier = newMultiplier
	st.mu.Unlock()

	if recovering {
		if result.Healthy {
			bh.RecordSuccess()
		} else {
			bh.RecordFailure()
		}
	}

	if wp.onResult != nil {
		wp.onResult(job.endpoint.Identity, result)
	}

	wp.scheduler.ScheduleProbe(job.endpoint, time.Now().Add(nextInterval))

	shouldLog, errCount := wp.tracker.ShouldLog(job.endpoint.Identity, result.Healthy)
	if shouldLog && wp.logger != nil {
		if !result.Healthy {
			wp.logger.Warn("engine health check failing",
				"engine", job.endpoint.Identity, "name", job.endpoint.Name,
				"consecutive_failures", errCount, "latency", result.Latency, "next_check_in", nextInterval)
		} else {
			wp.logger.Info("engine health status changed",
				"engine", job.endpoint.Identity, "name", job.endpoint.Name,
				"latency", result.Latency, "next_check_in", nextInterval)
		}
	}
}

func (wp *WorkerPool) stateFor(identity domain.EngineIdentity) *probeState {
	actual, _ := wp.states.LoadOrStore(identity, &probeState{backoffMultiplier: 1})
	return actual.(*probeState)
}
