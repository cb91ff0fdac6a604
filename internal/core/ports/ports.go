package ports

import (
	"context"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

// EngineAdapter translates the normalized InferenceRequest/Response into an
// engine family's wire format. One adapter instance serves every endpoint of
// its EngineIdentity; the endpoint's URL selects where a given call goes.
type EngineAdapter interface {
	Identity() domain.EngineIdentity

	Generate(ctx context.Context, endpoint *domain.EngineEndpoint, req *domain.InferenceRequest) (*domain.InferenceResponse, error)
	Stream(ctx context.Context, endpoint *domain.EngineEndpoint, req *domain.InferenceRequest) (<-chan domain.StreamChunk, error)
	Embed(ctx context.Context, endpoint *domain.EngineEndpoint, req *domain.InferenceRequest) (*domain.InferenceResponse, error)

	// Probe issues a lightweight health check against the endpoint.
	Probe(ctx context.Context, endpoint *domain.EngineEndpoint) domain.HealthCheckResult
}

// ConnectionPool bounds concurrent in-flight requests to one engine endpoint
// and hands out a shared, keep-alive http.Client for that endpoint.
type ConnectionPool interface {
	// Acquire blocks until a concurrency slot is free or ctx is done. The
	// returned release func must be called exactly once.
	Acquire(ctx context.Context) (release func(), err error)
	// TryAcquire takes a concurrency slot without blocking, returning a
	// PoolSaturatedError immediately if none is free. The returned release
	// func must be called exactly once.
	TryAcquire() (release func(), err error)
	State() domain.PoolState
	Close() error
}

// ConnectionPoolFactory builds a ConnectionPool for a given endpoint
// configuration, so the Manager doesn't need to know transport details.
type ConnectionPoolFactory interface {
	NewPool(identity domain.EngineIdentity, cfg domain.PoolConfig) ConnectionPool
}

// CircuitBreaker gates dispatch to a single engine endpoint. It is safe for
// concurrent use; RecordSuccess/RecordFailure are called by the dispatch
// path, AllowRequest is consulted before every dispatch attempt.
type CircuitBreaker interface {
	Identity() domain.EngineIdentity
	AllowRequest() bool
	RecordSuccess()
	RecordFailure()
	Snapshot() domain.BreakerSnapshot
}

// EngineManager performs deterministic ordered-failover dispatch: for a
// model, try each preferred engine in order, skipping any whose breaker is
// open or whose pool is saturated.
type EngineManager interface {
	Generate(ctx context.Context, req *domain.InferenceRequest) (*domain.InferenceResponse, error)
	Stream(ctx context.Context, req *domain.InferenceRequest) (<-chan domain.StreamChunk, error)
	Embed(ctx context.Context, req *domain.InferenceRequest) (*domain.InferenceResponse, error)
}

// HealthMonitor owns the probe schedule for every registered engine
// endpoint and drives circuit breaker recovery via half-open probes.
type HealthMonitor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	RegisterEndpoint(endpoint *domain.EngineEndpoint)
	UnregisterEndpoint(identity domain.EngineIdentity)
	Degraded() bool
	Metrics(identity domain.EngineIdentity) (domain.EngineMetricsSnapshot, bool)
}

// ModelRegistry maps model_id to its ordered engine preference list and
// capability set, with copy-on-write updates.
type ModelRegistry interface {
	Lookup(ctx context.Context, modelID string) (*domain.ModelDescriptor, error)
	Register(ctx context.Context, desc *domain.ModelDescriptor) error
	Retire(ctx context.Context, modelID string) error
	List(ctx context.Context) ([]*domain.ModelDescriptor, error)
}

// InferenceWorker runs the async priority job queue: submit enqueues, the
// other three operate on an existing job.
type InferenceWorker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Submit(ctx context.Context, req *domain.InferenceRequest, priority domain.Priority) (*domain.Job, error)
	Status(ctx context.Context, jobID string) (domain.Snapshot, error)
	Cancel(ctx context.Context, jobID string) error
	List(ctx context.Context, filter domain.JobFilter) ([]domain.Snapshot, error)
}
