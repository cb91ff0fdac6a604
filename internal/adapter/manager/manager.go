// Package manager implements the Engine Manager: for a model, try each
// preferred engine in deterministic priority order, skipping any whose
// breaker is open, whose pool is saturated, or that doesn't declare the
// capability the request needs, and stop at the first engine that accepts
// the dispatch. Grounded on the teacher's proxy service dispatch loop and
// its PrioritySelector for ordering candidates, adapted here to fail over
// across distinct engine identities rather than weight-pick among
// same-tier replicas.
package manager

import (
	"context"
	"errors"
	"time"

	"github.com/fenwick-ai/inferno/internal/adapter/balancer"
	"github.com/fenwick-ai/inferno/internal/core/domain"
	"github.com/fenwick-ai/inferno/internal/core/ports"
	"github.com/fenwick-ai/inferno/internal/logger"
)

// Manager dispatches inference requests across the engine roster,
// consulting the model registry for preference order and the per-engine
// breaker/pool pair for admission.
type Manager struct {
	registry ports.ModelRegistry
	roster   map[domain.EngineIdentity]*domain.EngineEndpoint
	adapters map[domain.EngineIdentity]ports.EngineAdapter
	breakers map[domain.EngineIdentity]ports.CircuitBreaker
	pools    map[domain.EngineIdentity]ports.ConnectionPool
	metrics  interface {
		RecordSuccess(domain.EngineIdentity, time.Duration)
		RecordFailure(domain.EngineIdentity)
	}
	order  *balancer.FailoverOrder
	logger *logger.StyledLogger
}

type Deps struct {
	Registry ports.ModelRegistry
	Roster   map[domain.EngineIdentity]*domain.EngineEndpoint
	Adapters map[domain.EngineIdentity]ports.EngineAdapter
	Breakers map[domain.EngineIdentity]ports.CircuitBreaker
	Pools    map[domain.EngineIdentity]ports.ConnectionPool
	Metrics  interface {
		RecordSuccess(domain.EngineIdentity, time.Duration)
		RecordFailure(domain.EngineIdentity)
	}
	Logger *logger.StyledLogger
}

func New(deps Deps) *Manager {
	return &Manager{
		registry: deps.Registry,
		roster:   deps.Roster,
		adapters: deps.Adapters,
		breakers: deps.Breakers,
		pools:    deps.Pools,
		metrics:  deps.Metrics,
		order:    balancer.NewFailoverOrder(),
		logger:   deps.Logger,
	}
}

// candidates resolves the ordered, routable list of endpoints this request
// may be dispatched to: the model's preferred engines that are actually in
// the roster, declare the capability the request needs, and currently
// admit requests through their breaker.
func (m *Manager) candidates(ctx context.Context, req *domain.InferenceRequest) ([]*domain.EngineEndpoint, error) {
	desc, err := m.registry.Lookup(ctx, req.ModelID)
	if err != nil {
		return nil, err
	}

	kind := req.Kind()
	preferred := make([]*domain.EngineEndpoint, 0, len(desc.EnginePreference))
	for _, identity := range desc.EnginePreference {
		endpoint, ok := m.roster[identity]
		if !ok || !endpoint.Supports(kind) {
			continue
		}
		preferred = append(preferred, endpoint)
	}
	if len(preferred) == 0 {
		return nil, domain.NewAllEnginesUnavailableError(req.ModelID, nil, domain.NewNotFoundError("engine", req.ModelID))
	}

	ordered := m.order.Order(preferred)
	return m.order.FilterRoutable(ordered, func(identity domain.EngineIdentity) bool {
		breaker, ok := m.breakers[identity]
		return ok && breaker.AllowRequest()
	}), nil
}

// isClientError reports whether err is a terminal client error: a 4xx a
// candidate engine returned, or a request the registry/roster itself
// rejected. These never open a breaker and are never retried against the
// next candidate — the request itself is bad, not the engine.
func isClientError(err error) bool {
	var clientErr *domain.ClientError
	return errors.As(err, &clientErr)
}

// Generate tries each candidate engine in order until one returns a
// result, recording success/failure against its breaker and metrics. A
// 4xx from an engine is returned to the caller immediately without
// recording a breaker failure or trying the next candidate.
func (m *Manager) Generate(ctx context.Context, req *domain.InferenceRequest) (*domain.InferenceResponse, error) {
	candidates, err := m.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	var tried []domain.EngineIdentity
	var lastErr error
	var saturated []domain.EngineIdentity

	for _, endpoint := range candidates {
		identity := endpoint.Identity
		pool := m.pools[identity]
		adapter := m.adapters[identity]
		breaker := m.breakers[identity]
		if pool == nil || adapter == nil || breaker == nil {
			continue
		}

		release, err := pool.TryAcquire()
		if err != nil {
			saturated = append(saturated, identity)
			continue
		}

		tried = append(tried, identity)
		start := time.Now()
		resp, err := adapter.Generate(ctx, endpoint, req)
		release()

		if err != nil {
			if isClientError(err) {
				return nil, err
			}
			lastErr = err
			breaker.RecordFailure()
			m.metrics.RecordFailure(identity)
			continue
		}

		breaker.RecordSuccess()
		m.metrics.RecordSuccess(identity, time.Since(start))
		return resp, nil
	}

	if len(tried) == 0 && len(saturated) > 0 {
		return nil, domain.NewSaturatedError(req.ModelID, saturated)
	}
	return nil, domain.NewAllEnginesUnavailableError(req.ModelID, tried, lastErr)
}

// Stream tries candidates the same way Generate does, but returns as
// soon as the first engine accepts the stream — errors observed mid-stream
// do not trigger failover, since output may already have reached the
// caller.
func (m *Manager) Stream(ctx context.Context, req *domain.InferenceRequest) (<-chan domain.StreamChunk, error) {
	candidates, err := m.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	var tried []domain.EngineIdentity
	var lastErr error
	var saturated []domain.EngineIdentity

	for _, endpoint := range candidates {
		identity := endpoint.Identity
		pool := m.pools[identity]
		adapter := m.adapters[identity]
		breaker := m.breakers[identity]
		if pool == nil || adapter == nil || breaker == nil {
			continue
		}

		release, err := pool.TryAcquire()
		if err != nil {
			saturated = append(saturated, identity)
			continue
		}

		tried = append(tried, identity)
		ch, err := adapter.Stream(ctx, endpoint, req)
		if err != nil {
			release()
			if isClientError(err) {
				return nil, err
			}
			lastErr = err
			breaker.RecordFailure()
			m.metrics.RecordFailure(identity)
			continue
		}

		breaker.RecordSuccess()
		return m.wrapStream(ctx, ch, release), nil
	}

	if len(tried) == 0 && len(saturated) > 0 {
		return nil, domain.NewSaturatedError(req.ModelID, saturated)
	}
	return nil, domain.NewAllEnginesUnavailableError(req.ModelID, tried, lastErr)
}

// wrapStream releases the pool slot once the upstream channel is drained,
// whether it finishes normally or the caller abandons it by cancelling ctx.
func (m *Manager) wrapStream(ctx context.Context, upstream <-chan domain.StreamChunk, release func()) <-chan domain.StreamChunk {
	out := make(chan domain.StreamChunk)
	go func() {
		defer release()
		defer close(out)
		for chunk := range upstream {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (m *Manager) Embed(ctx context.Context, req *domain.InferenceRequest) (*domain.InferenceResponse, error) {
	candidates, err := m.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	var tried []domain.EngineIdentity
	var lastErr error
	var saturated []domain.EngineIdentity

	for _, endpoint := range candidates {
		identity := endpoint.Identity
		pool := m.pools[identity]
		adapter := m.adapters[identity]
		breaker := m.breakers[identity]
		if pool == nil || adapter == nil || breaker == nil {
			continue
		}

		release, err := pool.TryAcquire()
		if err != nil {
			saturated = append(saturated, identity)
			continue
		}

		tried = append(tried, identity)
		start := time.Now()
		resp, err := adapter.Embed(ctx, endpoint, req)
		release()

		if err != nil {
			if isClientError(err) {
				return nil, err
			}
			lastErr = err
			breaker.RecordFailure()
			m.metrics.RecordFailure(identity)
			continue
		}

		breaker.RecordSuccess()
		m.metrics.RecordSuccess(identity, time.Since(start))
		return resp, nil
	}

	if len(tried) == 0 && len(saturated) > 0 {
		return nil, domain.NewSaturatedError(req.ModelID, saturated)
	}
	return nil, domain.NewAllEnginesUnavailableError(req.ModelID, tried, lastErr)
}
