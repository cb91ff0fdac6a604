// Package breaker implements the per-engine circuit breaker, grounded on
// the teacher's atomic circuitState idiom
// (internal/adapter/health/circuit_breaker.go) but made explicit about the
// CLOSED/OPEN/HALF_OPEN phase rather than inferring it from a failure
// counter and an isOpen flag.
package breaker

import (
	"sync/atomic"
	"time"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

const (
	DefaultFailureThreshold = 3
	DefaultOpenTimeout      = 30 * time.Second
)

// Breaker is a single engine endpoint's circuit breaker. It is safe for
// concurrent use; AllowRequest performs the CAS that admits at most one
// probe while HALF_OPEN.
type Breaker struct {
	identity         domain.EngineIdentity
	failureThreshold int64
	openTimeout      time.Duration

	phase               atomic.Int32
	consecutiveFailures atomic.Int64
	openedAtNano        atomic.Int64
	probeInFlight       atomic.Bool
}

func New(identity domain.EngineIdentity, failureThreshold int64, openTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}
	return &Breaker{
		identity:         identity,
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
	}
}

func (b *Breaker) Identity() domain.EngineIdentity { return b.identity }

func (b *Breaker) phaseNow() domain.BreakerPhase {
	return domain.BreakerPhase(b.phase.Load())
}

// AllowRequest reports whether a dispatch attempt may proceed. CLOSED always
// allows; OPEN allows only once the open timeout has elapsed, at which point
// it transitions to HALF_OPEN and admits exactly one probe via CAS; a second
// caller observing HALF_OPEN while a probe is already in flight is refused.
func (b *Breaker) AllowRequest() bool {
	switch b.phaseNow() {
	case domain.BreakerClosed:
		return true
	case domain.BreakerHalfOpen:
		return b.probeInFlight.CompareAndSwap(false, true)
	case domain.BreakerOpen:
		openedAt := time.Unix(0, b.openedAtNano.Load())
		if time.Now().Before(openedAt.Add(b.openTimeout)) {
			return false
		}
		if !b.phase.CompareAndSwap(int32(domain.BreakerOpen), int32(domain.BreakerHalfOpen)) {
			return false
		}
		return b.probeInFlight.CompareAndSwap(false, true)
	default:
		return false
	}
}

// RecordSuccess closes the breaker and clears the failure counter. From
// HALF_OPEN this resolves the single in-flight probe.
func (b *Breaker) RecordSuccess() {
	b.consecutiveFailures.Store(0)
	b.probeInFlight.Store(false)
	b.phase.Store(int32(domain.BreakerClosed))
}

// RecordFailure increments the failure counter and opens the breaker once
// the threshold is reached, or immediately re-opens from HALF_OPEN since a
// failed probe means the engine is still down.
func (b *Breaker) RecordFailure() {
	if b.phaseNow() == domain.BreakerHalfOpen {
		b.probeInFlight.Store(false)
		b.openedAtNano.Store(time.Now().UnixNano())
		b.phase.Store(int32(domain.BreakerOpen))
		return
	}

	failures := b.consecutiveFailures.Add(1)
	if failures >= b.failureThreshold {
		b.openedAtNano.Store(time.Now().UnixNano())
		b.phase.Store(int32(domain.BreakerOpen))
	}
}

func (b *Breaker) Snapshot() domain.BreakerSnapshot {
	return domain.BreakerSnapshot{
		Identity:            b.identity,
		Phase:               b.phaseNow(),
		ConsecutiveFailures: int(b.consecutiveFailures.Load()),
		ProbeInFlight:       b.probeInFlight.Load(),
		OpenedAt:            time.Unix(0, b.openedAtNano.Load()),
	}
}
