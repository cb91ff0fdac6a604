package health

import (
	"context"

	"github.com/fenwick-ai/inferno/internal/core/domain"
)

// RecoveryCallback is invoked when an engine endpoint transitions from
// unhealthy back to healthy, letting callers (e.g. the roster's degraded-mode
// tracker) react without polling.
type RecoveryCallback interface {
	OnEngineRecovered(ctx context.Context, endpoint *domain.EngineEndpoint) error
}

type RecoveryCallbackFunc func(ctx context.Context, endpoint *domain.EngineEndpoint) error

func (f RecoveryCallbackFunc) OnEngineRecovered(ctx context.Context, endpoint *domain.EngineEndpoint) error {
	return f(ctx, endpoint)
}

type NoOpRecoveryCallback struct{}

func (NoOpRecoveryCallback) OnEngineRecovered(ctx context.Context, endpoint *domain.EngineEndpoint) error {
	return nil
}
