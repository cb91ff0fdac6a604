package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fenwick-ai/inferno/internal/core/domain"
	"github.com/fenwick-ai/inferno/internal/core/ports"
	"github.com/fenwick-ai/inferno/internal/util"
)

var ErrNoAdapterForEngine = errors.New("no engine adapter registered for identity")

// Prober performs a single probe against an endpoint with retry logic and
// panic recovery, grounded on the teacher's HealthClient.Check. Unlike the
// teacher, which issued its own HTTP GET, Prober delegates the wire format
// to the registered EngineAdapter for the endpoint's identity — an ollama
// endpoint is probed the ollama way, a vllm endpoint the OpenAI-compatible
// way.
type Prober struct {
	adapters map[domain.EngineIdentity]ports.EngineAdapter
}

func NewProber(adapters map[domain.EngineIdentity]ports.EngineAdapter) *Prober {
	return &Prober{adapters: adapters}
}

func (p *Prober) Probe(ctx context.Context, endpoint *domain.EngineEndpoint) (result domain.HealthCheckResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panic recovered: %v", r)
			result = domain.HealthCheckResult{ErrorType: domain.ErrorTypeHTTPError, Error: err}
		}
	}()

	adapter, ok := p.adapters[endpoint.Identity]
	if !ok {
		return domain.HealthCheckResult{ErrorType: domain.ErrorTypeHTTPError, Error: ErrNoAdapterForEngine}, ErrNoAdapterForEngine
	}

	var lastResult domain.HealthCheckResult
	for attempt := 0; attempt <= DefaultMaxRetries; attempt++ {
		if attempt > 0 {
			delay := util.CalculateExponentialBackoff(attempt, DefaultBaseDelay, MaxBackoffDelay, 0.25)
			delayCtx, cancel := context.WithTimeout(context.Background(), delay)
			select {
			case <-delayCtx.Done():
			case <-ctx.Done():
				cancel()
				return lastResult, ctx.Err()
			}
			cancel()
		}

		lastResult = adapter.Probe(ctx, endpoint)
		if lastResult.Healthy || !shouldRetry(lastResult.ErrorType) {
			break
		}
	}

	if !lastResult.Healthy {
		return lastResult, lastResult.Error
	}
	return lastResult, nil
}

func shouldRetry(errorType domain.HealthCheckErrorType) bool {
	switch errorType {
	case domain.ErrorTypeNetwork, domain.ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// calculateBackoff determines the next check interval and backoff
// multiplier for a probe target, grounded on the teacher's
// calculateBackoff(endpoint, success). Since EngineEndpoint is immutable,
// the interval/multiplier pair lives in the caller's probeState rather than
// on the endpoint itself.
func calculateBackoff(baseInterval time.Duration, currentMultiplier int, success bool) (time.Duration, int) {
	if success {
		return baseInterval, 1
	}

	if currentMultiplier <= 1 {
		return baseInterval, 2
	}

	nextMultiplier := currentMultiplier * 2
	if nextMultiplier > MaxBackoffMultiplier {
		nextMultiplier = MaxBackoffMultiplier
	}

	interval := baseInterval * time.Duration(currentMultiplier)
	if interval > MaxBackoffSeconds {
		interval = MaxBackoffSeconds
	}

	return interval, nextMultiplier
}
