package health

import "sync"

// StatsCollector reports scheduler/worker-pool operational stats, grounded
// on the teacher's StatsCollector but trimmed of the EndpointRepository
// dependency — the Monitor holds its own roster directly.
type StatsCollector struct {
	mu         sync.RWMutex
	running    bool
	workerPool *WorkerPool
	scheduler  *Scheduler
	tracker    *StatusTransitionTracker
}

func NewStatsCollector(workerPool *WorkerPool, scheduler *Scheduler, tracker *StatusTransitionTracker) *StatsCollector {
	return &StatsCollector{workerPool: workerPool, scheduler: scheduler, tracker: tracker}
}

func (sc *StatsCollector) SetRunning(running bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.running = running
}

func (sc *StatsCollector) SchedulerStats() map[string]interface{} {
	sc.mu.RLock()
	running := sc.running
	sc.mu.RUnlock()

	if !running {
		return map[string]interface{}{"running": false}
	}

	queueSize, queueCap, queueUsage := sc.workerPool.QueueStats()
	return map[string]interface{}{
		"running":          running,
		"queue_size":       queueSize,
		"queue_cap":        queueCap,
		"queue_usage":      queueUsage,
		"scheduled_probes": sc.scheduler.ScheduledCount(),
	}
}

func (sc *StatsCollector) TrackerStats() map[string]interface{} {
	engines := sc.tracker.TrackedEngines()
	return map[string]interface{}{
		"tracked_engines": len(engines),
		"engines":         engines,
	}
}
