package domain

import "time"

// BreakerPhase is the per-engine circuit breaker state. Transitions are
// serialized per engine (see the adapter/breaker package) and never revisit
// a prior phase without passing through the ones in between.
type BreakerPhase int32

const (
	BreakerClosed BreakerPhase = iota
	BreakerOpen
	BreakerHalfOpen
)

func (p BreakerPhase) String() string {
	switch p {
	case BreakerOpen:
		return "OPEN"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// CanTransitionTo enforces the breaker's state machine: CLOSED and OPEN can
// each move to their one successor, HALF_OPEN can resolve to either.
func (p BreakerPhase) CanTransitionTo(target BreakerPhase) bool {
	switch p {
	case BreakerClosed:
		return target == BreakerOpen || target == BreakerClosed
	case BreakerOpen:
		return target == BreakerHalfOpen || target == BreakerOpen
	case BreakerHalfOpen:
		return target == BreakerClosed || target == BreakerOpen
	default:
		return false
	}
}

// BreakerSnapshot is a read-only, best-effort view of a breaker's state for
// status reporting; it is not linearizable with the live state.
type BreakerSnapshot struct {
	OpenedAt            time.Time
	Identity            EngineIdentity
	Phase               BreakerPhase
	ConsecutiveFailures int
	ProbeInFlight       bool
}
