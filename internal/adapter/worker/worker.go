// Package worker implements the Inference Worker: an async three-tier
// priority job queue sitting in front of the Engine Manager, grounded on
// the teacher's health.WorkerPool pattern — a fixed goroutine set draining
// a channel, adapted here to drain three priority channels with HIGH
// always preferred, and to own job lifecycle rather than a one-shot probe.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/fenwick-ai/inferno/internal/core/domain"
	"github.com/fenwick-ai/inferno/internal/core/ports"
	"github.com/fenwick-ai/inferno/internal/logger"
	"github.com/fenwick-ai/inferno/pkg/eventbus"
)

const (
	DefaultConcurrency     = 4
	DefaultQueueCapacity   = 256
	DefaultExpiryWindow    = 5 * time.Minute
	DefaultStaleThreshold  = 2 * time.Minute
	DefaultRetentionWindow = 1 * time.Hour
	DefaultSweepInterval   = 30 * time.Second
)

// Config tunes the worker's concurrency and queue policy.
type Config struct {
	Concurrency              int
	QueueCapacityPerPriority int
	ExpiryWindow             time.Duration
	StaleThreshold           time.Duration
	RetentionWindow          time.Duration
}

// Worker is the Inference Worker: it queues jobs by priority, dispatches
// them to the Engine Manager on a fixed goroutine pool, and answers
// status/cancel/list queries from an in-memory job table.
type Worker struct {
	manager ports.EngineManager
	cfg     Config
	logger  *logger.StyledLogger

	high   chan *domain.Job
	normal chan *domain.Job
	low    chan *domain.Job

	jobs  *xsync.Map[string, *domain.Job]
	epoch string

	events *eventbus.EventBus[domain.Snapshot]

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

func New(manager ports.EngineManager, cfg Config, log *logger.StyledLogger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.QueueCapacityPerPriority <= 0 {
		cfg.QueueCapacityPerPriority = DefaultQueueCapacity
	}
	if cfg.ExpiryWindow <= 0 {
		cfg.ExpiryWindow = DefaultExpiryWindow
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = DefaultStaleThreshold
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = DefaultRetentionWindow
	}

	return &Worker{
		manager: manager,
		cfg:     cfg,
		logger:  log,
		high:    make(chan *domain.Job, cfg.QueueCapacityPerPriority),
		normal:  make(chan *domain.Job, cfg.QueueCapacityPerPriority),
		low:     make(chan *domain.Job, cfg.QueueCapacityPerPriority),
		jobs:    xsync.NewMap[string, *domain.Job](),
		epoch:   uuid.NewString(),
		events:  eventbus.New[domain.Snapshot](),
		stopCh:  make(chan struct{}),
	}
}

// Subscribe returns a channel of job Snapshots published on every lifecycle
// transition (dispatched, succeeded, failed, cancelled, expired), plus a
// cleanup func the caller must invoke once done. The subscription ends
// automatically when ctx is cancelled.
func (w *Worker) Subscribe(ctx context.Context) (<-chan domain.Snapshot, func()) {
	return w.events.Subscribe(ctx)
}

func (w *Worker) publish(job *domain.Job) {
	w.events.PublishAsync(job.Snapshot(w.epoch))
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	w.running = true

	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.run()
	}

	w.wg.Add(1)
	go w.sweep()

	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.events.Shutdown()
		return nil
	case <-ctx.Done():
		w.events.Shutdown()
		return ctx.Err()
	}
}

// Submit enqueues a job onto its priority's channel, failing with
// QueueFullError if that tier is at capacity.
func (w *Worker) Submit(ctx context.Context, req *domain.InferenceRequest, priority domain.Priority) (*domain.Job, error) {
	job := domain.NewJob(uuid.NewString(), *req, priority)
	w.jobs.Store(job.JobID, job)

	ch := w.channelFor(priority)
	select {
	case ch <- job:
		return job, nil
	default:
		w.jobs.Delete(job.JobID)
		return nil, domain.NewQueueFullError(priority, len(ch))
	}
}

func (w *Worker) channelFor(priority domain.Priority) chan *domain.Job {
	switch priority {
	case domain.PriorityHigh:
		return w.high
	case domain.PriorityLow:
		return w.low
	default:
		return w.normal
	}
}

func (w *Worker) Status(ctx context.Context, jobID string) (domain.Snapshot, error) {
	job, ok := w.jobs.Load(jobID)
	if !ok {
		return domain.Snapshot{}, domain.NewNotFoundError("job", jobID)
	}
	return job.Snapshot(w.epoch), nil
}

// Cancel marks a job's cancel signal. A PENDING job is transitioned to
// CANCELLED the next time a worker goroutine dequeues it; a RUNNING job has
// its in-flight dispatch aborted and transitions RUNNING->CANCELLED as soon
// as the aborted call returns.
func (w *Worker) Cancel(ctx context.Context, jobID string) error {
	job, ok := w.jobs.Load(jobID)
	if !ok {
		return domain.NewNotFoundError("job", jobID)
	}
	if job.IsTerminal() {
		return nil
	}
	job.Cancel()
	return nil
}

func (w *Worker) List(ctx context.Context, filter domain.JobFilter) ([]domain.Snapshot, error) {
	var all []domain.Snapshot
	w.jobs.Range(func(_ string, job *domain.Job) bool {
		snap := job.Snapshot(w.epoch)
		if filter.State != nil && snap.State != *filter.State {
			return true
		}
		if filter.Priority != nil && snap.Priority != *filter.Priority {
			return true
		}
		if filter.SubmittedAfter != nil && snap.SubmittedAt.Before(*filter.SubmittedAfter) {
			return true
		}
		all = append(all, snap)
		return true
	})

	if filter.Offset > 0 && filter.Offset < len(all) {
		all = all[filter.Offset:]
	} else if filter.Offset >= len(all) {
		all = nil
	}
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, nil
}

// run is one worker goroutine: it always prefers HIGH over NORMAL over LOW
// so that a HIGH job enqueued while others wait is dequeued first, then
// falls back to a blocking select across all tiers.
func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		job, ok := w.dequeue()
		if !ok {
			return
		}
		w.process(job)
	}
}

func (w *Worker) dequeue() (*domain.Job, bool) {
	select {
	case job := <-w.high:
		return job, true
	default:
	}
	select {
	case job := <-w.normal:
		return job, true
	default:
	}
	select {
	case job := <-w.low:
		return job, true
	default:
	}

	select {
	case job := <-w.high:
		return job, true
	case job := <-w.normal:
		return job, true
	case job := <-w.low:
		return job, true
	case <-w.stopCh:
		return nil, false
	}
}

func (w *Worker) process(job *domain.Job) {
	defer w.publish(job)

	if job.CancelRequested() {
		job.MarkCancelled()
		return
	}

	if time.Since(job.SubmittedAt) > w.cfg.ExpiryWindow {
		job.MarkExpired("expired before dispatch")
		return
	}

	job.MarkRunning()
	w.publish(job)

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.StaleThreshold)
	defer cancel()

	// Abort the in-flight dispatch the moment Cancel is observed, rather
	// than waiting for the engine call to return on its own.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-job.Done():
			cancel()
		case <-watchDone:
		}
	}()

	resp, err := w.manager.Generate(ctx, &job.Request)

	if err != nil {
		if job.CancelRequested() {
			job.MarkCancelled()
			return
		}
		job.MarkFailed(err)
		if w.logger != nil {
			w.logger.Warn("job failed", "job_id", job.JobID, "model", job.Request.ModelID, "error", err)
		}
		return
	}

	job.MarkSucceeded(resp)
}

// sweep periodically forces stale RUNNING jobs to FAILED and purges
// terminal jobs older than the retention window, so the job table doesn't
// grow unbounded.
func (w *Worker) sweep() {
	defer w.wg.Done()
	ticker := time.NewTicker(DefaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweepOnce()
		}
	}
}

func (w *Worker) sweepOnce() {
	now := time.Now()
	var toDelete []string

	w.jobs.Range(func(jobID string, job *domain.Job) bool {
		if startedAt, running := job.RunningSince(); running && now.Sub(startedAt) > w.cfg.StaleThreshold {
			if job.MarkStale("stale: exceeded staleness threshold while running") {
				w.publish(job)
			}
		}

		if finishedAt, terminal := job.FinishedSince(); terminal && now.Sub(finishedAt) > w.cfg.RetentionWindow {
			toDelete = append(toDelete, jobID)
		}
		return true
	})

	for _, jobID := range toDelete {
		w.jobs.Delete(jobID)
	}
}
