// Package pool implements the per-engine connection pool: a
// bounded-concurrency semaphore paired with a keep-alive http.Client,
// grounded on the teacher's olla proxy service, which keyed a per-endpoint
// *http.Transport in an xsync.Map and tuned it for long-lived streaming
// workloads.
package pool

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/fenwick-ai/inferno/internal/core/domain"
	"github.com/fenwick-ai/inferno/internal/core/ports"
)

const (
	DefaultMaxIdleConns        = 100
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultKeepAlive           = 30 * time.Second
)

// Pool bounds concurrent in-flight requests to one engine endpoint via a
// buffered-channel semaphore, and hands out a shared *http.Client tuned
// for keep-alive reuse.
type Pool struct {
	identity domain.EngineIdentity
	cfg      domain.PoolConfig
	client   *http.Client
	sem      chan struct{}
	inFlight atomic.Int64
	closed   atomic.Bool
}

// Factory builds one Pool per engine identity, implementing
// ports.ConnectionPoolFactory.
type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) NewPool(identity domain.EngineIdentity, cfg domain.PoolConfig) ports.ConnectionPool {
	return New(identity, cfg)
}

func New(identity domain.EngineIdentity, cfg domain.PoolConfig) *Pool {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = DefaultMaxIdleConns
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = DefaultIdleConnTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultKeepAlive
	}

	transport := &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: DefaultKeepAlive,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConns,
		MaxConnsPerHost:     cfg.MaxConcurrent,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
	}

	return &Pool{
		identity: identity,
		cfg:      cfg,
		client:   &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Client returns the shared http.Client for dispatching requests once a
// slot has been acquired.
func (p *Pool) Client() *http.Client { return p.client }

// Acquire blocks until a concurrency slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("pool for %s is closed", p.identity)
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return p.acquired(), nil
}

// TryAcquire attempts to take a concurrency slot without blocking,
// returning a PoolSaturatedError immediately if none is free. This is the
// admission path the Engine Manager uses: a full pool is a reason to skip
// to the next candidate engine, not to wait.
func (p *Pool) TryAcquire() (func(), error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("pool for %s is closed", p.identity)
	}

	select {
	case p.sem <- struct{}{}:
	default:
		return nil, domain.NewPoolSaturatedError(p.identity)
	}

	return p.acquired(), nil
}

// acquired records the slot as taken and returns its release func, callable
// exactly once.
func (p *Pool) acquired() func() {
	p.inFlight.Add(1)
	released := atomic.Bool{}
	return func() {
		if released.CompareAndSwap(false, true) {
			p.inFlight.Add(-1)
			<-p.sem
		}
	}
}

func (p *Pool) State() domain.PoolState {
	return domain.PoolState{
		Config:          p.cfg,
		Identity:        p.identity,
		MaxConcurrent:   p.cfg.MaxConcurrent,
		CurrentInFlight: int(p.inFlight.Load()),
		IdleClients:     p.cfg.MaxIdleConns - int(p.inFlight.Load()),
	}
}

func (p *Pool) Close() error {
	p.closed.Store(true)
	p.client.CloseIdleConnections()
	return nil
}
